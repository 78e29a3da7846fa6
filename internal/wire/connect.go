package wire

import "encoding/binary"

// Connect is the CONNECT control packet. ProtocolName/ProtocolLevel
// are fixed by Version on encode; Properties is only emitted for v5.
type Connect struct {
	Version      uint8
	CleanStart   bool
	KeepAlive    uint16
	ClientID     string
	Properties   *Properties

	WillFlag       bool
	WillQoS        uint8
	WillRetain     bool
	WillTopic      string
	WillPayload    []byte
	WillProperties *Properties

	Username     string
	HasUsername  bool
	Password     string
	HasPassword  bool
}

func (p *Connect) Type() uint8 { return CONNECT }

func (p *Connect) appendTo(dst []byte, version uint8) ([]byte, error) {
	if p.HasPassword && !p.HasUsername && version < Version5 {
		return nil, ErrConnectPasswordNoUsername
	}

	var flags uint8
	if p.CleanStart {
		flags |= 0x02
	}
	if p.WillFlag {
		flags |= 0x04 | (p.WillQoS&0x03)<<3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.HasPassword {
		flags |= 0x40
	}
	if p.HasUsername {
		flags |= 0x80
	}

	protocolName := "MQTT"
	var body []byte
	body = appendString(body, protocolName)
	body = append(body, version, flags)
	body = binary.BigEndian.AppendUint16(body, p.KeepAlive)
	if version >= Version5 {
		body = appendProperties(body, p.Properties)
	}
	body = appendString(body, p.ClientID)
	if p.WillFlag {
		if version >= Version5 {
			body = appendProperties(body, p.WillProperties)
		}
		body = appendString(body, p.WillTopic)
		if len(p.WillPayload) > 65535 {
			return nil, ErrWillTooLarge
		}
		body = appendBinary(body, p.WillPayload)
	}
	if p.HasUsername {
		body = appendString(body, p.Username)
	}
	if p.HasPassword {
		body = appendString(body, p.Password)
	}

	header := FixedHeader{PacketType: CONNECT, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...), nil
}

func decodeConnect(buf []byte, _ uint8) (*Connect, error) {
	name, n, err := decodeString(buf)
	if err != nil {
		return nil, err
	}
	if name != "MQTT" && name != "MQIsdp" {
		return nil, decodeErr("UnrecognizedProtocolName", name)
	}
	off := n
	if len(buf) < off+4 {
		return nil, decodeErr("IncompletePacket", "connect variable header")
	}
	level := buf[off]
	off++
	flags := buf[off]
	off++
	keepAlive := binary.BigEndian.Uint16(buf[off:])
	off += 2

	p := &Connect{
		Version:     level,
		CleanStart:  flags&0x02 != 0,
		KeepAlive:   keepAlive,
		WillFlag:    flags&0x04 != 0,
		WillQoS:     (flags >> 3) & 0x03,
		WillRetain:  flags&0x20 != 0,
		HasPassword: flags&0x40 != 0,
		HasUsername: flags&0x80 != 0,
	}
	if level >= Version5 {
		props, pn, err := decodeProperties(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Properties = props
		off += pn
	}
	clientID, n, err := decodeString(buf[off:])
	if err != nil {
		return nil, err
	}
	p.ClientID = clientID
	off += n

	if p.WillFlag {
		if level >= Version5 {
			wp, n, err := decodeProperties(buf[off:])
			if err != nil {
				return nil, err
			}
			p.WillProperties = wp
			off += n
		}
		topic, n, err := decodeString(buf[off:])
		if err != nil {
			return nil, err
		}
		p.WillTopic = topic
		off += n
		payload, n, err := decodeBinary(buf[off:])
		if err != nil {
			return nil, err
		}
		p.WillPayload = payload
		off += n
	}
	if p.HasUsername {
		u, n, err := decodeString(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Username = u
		off += n
	}
	if p.HasPassword {
		pw, n, err := decodeString(buf[off:])
		if err != nil {
			return nil, err
		}
		p.Password = pw
		off += n
	}
	return p, nil
}
