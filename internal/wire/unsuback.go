package wire

import "encoding/binary"

// Unsuback is the UNSUBACK control packet.
type Unsuback struct {
	PacketID    uint16
	ReasonCodes []uint8
	Properties  *Properties
}

func (p *Unsuback) Type() uint8 { return UNSUBACK }

func (p *Unsuback) appendTo(dst []byte, version uint8) ([]byte, error) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, p.PacketID)
	if version >= Version5 {
		body = appendProperties(body, p.Properties)
		body = append(body, p.ReasonCodes...)
	}
	header := FixedHeader{PacketType: UNSUBACK, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...), nil
}

func decodeUnsuback(buf []byte, version uint8) (*Unsuback, error) {
	if len(buf) < 2 {
		return nil, decodeErr("IncompletePacket", "unsuback packet id")
	}
	p := &Unsuback{PacketID: binary.BigEndian.Uint16(buf)}
	off := 2
	if version >= Version5 {
		props, n, err := decodeProperties(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Properties = props
		off += n
		p.ReasonCodes = append([]uint8(nil), buf[off:]...)
	}
	return p, nil
}
