package wire

// Puback is the PUBACK control packet (QoS 1 acknowledgement).
type Puback struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *Puback) Type() uint8 { return PUBACK }

func (p *Puback) appendTo(dst []byte, version uint8) ([]byte, error) {
	return appendAckTo(dst, PUBACK, 0, p.PacketID, p.ReasonCode, p.Properties, version), nil
}

func decodePuback(buf []byte, version uint8) (*Puback, error) {
	f, err := decodeAckFields(buf, version)
	if err != nil {
		return nil, err
	}
	return &Puback{PacketID: f.PacketID, ReasonCode: f.ReasonCode, Properties: f.Properties}, nil
}
