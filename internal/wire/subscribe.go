package wire

import "encoding/binary"

// SubscribeTopic is one entry of a SUBSCRIBE packet's topic filter
// list, with its MQTT v5 subscription options.
type SubscribeTopic struct {
	Filter            string
	QoS               uint8
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    uint8 // 0=Send, 1=SendIfNew, 2=DoNotSend
}

// Subscribe is the SUBSCRIBE control packet.
type Subscribe struct {
	PacketID   uint16
	Topics     []SubscribeTopic
	Properties *Properties
}

func (p *Subscribe) Type() uint8 { return SUBSCRIBE }

func (p *Subscribe) appendTo(dst []byte, version uint8) ([]byte, error) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, p.PacketID)
	if version >= Version5 {
		body = appendProperties(body, p.Properties)
	}
	for _, t := range p.Topics {
		body = appendString(body, t.Filter)
		opts := t.QoS & 0x03
		if version >= Version5 {
			if t.NoLocal {
				opts |= 0x04
			}
			if t.RetainAsPublished {
				opts |= 0x08
			}
			opts |= (t.RetainHandling & 0x03) << 4
		}
		body = append(body, opts)
	}
	header := FixedHeader{PacketType: SUBSCRIBE, Flags: 0x02, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...), nil
}

func decodeSubscribe(buf []byte, version uint8) (*Subscribe, error) {
	if len(buf) < 2 {
		return nil, decodeErr("IncompletePacket", "subscribe packet id")
	}
	p := &Subscribe{PacketID: binary.BigEndian.Uint16(buf)}
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
		off += n
		if off >= len(buf) {
			return nil, decodeErr("IncompletePacket", "subscribe options byte")
		}
		opts := buf[off]
		off++
		p.Topics = append(p.Topics, SubscribeTopic{
			Filter:            filter,
			QoS:               opts & 0x03,
			NoLocal:           opts&0x04 != 0,
			RetainAsPublished: opts&0x08 != 0,
			RetainHandling:    (opts >> 4) & 0x03,
		})
	}
	if len(p.Topics) == 0 {
		return nil, decodeErr("ProtocolError", "SUBSCRIBE with no topic filters")
	}
	return p, nil
}
