package wire

import "encoding/binary"

// Unsubscribe is the UNSUBSCRIBE control packet.
type Unsubscribe struct {
	PacketID   uint16
	Filters    []string
	Properties *Properties
}

func (p *Unsubscribe) Type() uint8 { return UNSUBSCRIBE }

func (p *Unsubscribe) appendTo(dst []byte, version uint8) ([]byte, error) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, p.PacketID)
	if version >= Version5 {
		body = appendProperties(body, p.Properties)
	}
	for _, f := range p.Filters {
		body = appendString(body, f)
	}
	header := FixedHeader{PacketType: UNSUBSCRIBE, Flags: 0x02, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...), nil
}

func decodeUnsubscribe(buf []byte, version uint8) (*Unsubscribe, error) {
	if len(buf) < 2 {
		return nil, decodeErr("IncompletePacket", "unsubscribe packet id")
	}
	p := &Unsubscribe{PacketID: binary.BigEndian.Uint16(buf)}
	off := 2
	if version >= Version5 {
		props, n, err := decodeProperties(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Properties = props
		off += n
	}
	for off < len(buf) {
		filter, n, err := decodeString(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Filters = append(p.Filters, filter)
		off += n
	}
	if len(p.Filters) == 0 {
		return nil, decodeErr("ProtocolError", "UNSUBSCRIBE with no topic filters")
	}
	return p, nil
}
