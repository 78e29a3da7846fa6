package wire

// Pubrec is the PUBREC control packet (QoS 2, step 1).
type Pubrec struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *Pubrec) Type() uint8 { return PUBREC }

func (p *Pubrec) appendTo(dst []byte, version uint8) ([]byte, error) {
	return appendAckTo(dst, PUBREC, 0, p.PacketID, p.ReasonCode, p.Properties, version), nil
}

func decodePubrec(buf []byte, version uint8) (*Pubrec, error) {
	f, err := decodeAckFields(buf, version)
	if err != nil {
		return nil, err
	}
	return &Pubrec{PacketID: f.PacketID, ReasonCode: f.ReasonCode, Properties: f.Properties}, nil
}
