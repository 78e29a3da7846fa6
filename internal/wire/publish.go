package wire

import "encoding/binary"

// Publish is the PUBLISH control packet.
type Publish struct {
	Dup        bool
	QoS        uint8
	Retain     bool
	Topic      string
	PacketID   uint16 // only meaningful when QoS > 0
	Properties *Properties
	Payload    []byte
}

func (p *Publish) Type() uint8 { return PUBLISH }

func (p *Publish) appendTo(dst []byte, version uint8) ([]byte, error) {
	var flags uint8
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	var body []byte
	body = appendString(body, p.Topic)
	if p.QoS > 0 {
		body = binary.BigEndian.AppendUint16(body, p.PacketID)
	}
	if version >= Version5 {
		body = appendProperties(body, p.Properties)
	}
	body = append(body, p.Payload...)

	header := FixedHeader{PacketType: PUBLISH, Flags: flags, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...), nil
}

func decodePublish(buf []byte, header FixedHeader, version uint8) (*Publish, error) {
	p := &Publish{
		Dup:    header.Flags&0x08 != 0,
		QoS:    (header.Flags >> 1) & 0x03,
		Retain: header.Flags&0x01 != 0,
	}
	if p.QoS > 2 {
		return nil, decodeErr("UnrecognizedQoS", "")
	}
	topic, n, err := decodeString(buf)
	if err != nil {
		return nil, err
	}
	// PUBLISH topic names may be empty only when a topic alias resolves
	// them; decoding accepts an empty topic either way, and neither this
	// codec nor the session layer checks that an alias accompanies it
	// (topic alias is an out-of-scope collaborator concern).
	p.Topic = topic
	off := n

	if p.QoS > 0 {
		if len(buf) < off+2 {
			return nil, decodeErr("IncompletePacket", "publish packet id")
		}
		p.PacketID = binary.BigEndian.Uint16(buf[off:])
		off += 2
	}
	if version >= Version5 {
		props, n, err := decodeProperties(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Properties = props
		off += n
	}
	p.Payload = append([]byte(nil), buf[off:]...)
	return p, nil
}
