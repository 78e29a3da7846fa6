package wire

// Pubrel is the PUBREL control packet (QoS 2, step 2). Fixed header
// flags are 0x02 per MQTT v5 section 3.6.1.
type Pubrel struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *Pubrel) Type() uint8 { return PUBREL }

func (p *Pubrel) appendTo(dst []byte, version uint8) ([]byte, error) {
	return appendAckTo(dst, PUBREL, 0x02, p.PacketID, p.ReasonCode, p.Properties, version), nil
}

func decodePubrel(buf []byte, version uint8) (*Pubrel, error) {
	f, err := decodeAckFields(buf, version)
	if err != nil {
		return nil, err
	}
	return &Pubrel{PacketID: f.PacketID, ReasonCode: f.ReasonCode, Properties: f.Properties}, nil
}
