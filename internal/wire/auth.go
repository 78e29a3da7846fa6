package wire

// Auth is the AUTH control packet (MQTT v5 enhanced authentication,
// section 3.15). It is only ever sent/received on a v5 connection.
type Auth struct {
	ReasonCode uint8
	Properties *Properties
}

func (p *Auth) Type() uint8 { return AUTH }

func (p *Auth) appendTo(dst []byte, _ uint8) ([]byte, error) {
	var body []byte
	if p.ReasonCode != AuthReasonSuccess || p.Properties != nil {
		body = append(body, p.ReasonCode)
		body = appendProperties(body, p.Properties)
	}
	header := FixedHeader{PacketType: AUTH, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...), nil
}

func decodeAuth(buf []byte, _ uint8) (*Auth, error) {
	p := &Auth{}
	if len(buf) > 0 {
		p.ReasonCode = buf[0]
		if len(buf) > 1 {
			props, _, err := decodeProperties(buf[1:])
			if err != nil {
				return nil, err
			}
			p.Properties = props
		}
	}
	return p, nil
}
