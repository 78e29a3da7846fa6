package wire

// Pubcomp is the PUBCOMP control packet (QoS 2, step 3).
type Pubcomp struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *Pubcomp) Type() uint8 { return PUBCOMP }

func (p *Pubcomp) appendTo(dst []byte, version uint8) ([]byte, error) {
	return appendAckTo(dst, PUBCOMP, 0, p.PacketID, p.ReasonCode, p.Properties, version), nil
}

func decodePubcomp(buf []byte, version uint8) (*Pubcomp, error) {
	f, err := decodeAckFields(buf, version)
	if err != nil {
		return nil, err
	}
	return &Pubcomp{PacketID: f.PacketID, ReasonCode: f.ReasonCode, Properties: f.Properties}, nil
}
