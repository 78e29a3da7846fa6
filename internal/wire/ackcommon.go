package wire

import "encoding/binary"

// appendAckTo serializes the PUBACK/PUBREC/PUBREL/PUBCOMP shape shared
// by all four acknowledgement packets: packet id, and on v5 an
// omittable reason code + properties pair (omitted entirely when
// ReasonCode is Success and there are no properties, per MQTT v5
// sections 3.4-3.7).
func appendAckTo(dst []byte, packetType, flags uint8, packetID uint16, reasonCode uint8, props *Properties, version uint8) []byte {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, packetID)
	if version >= Version5 && (reasonCode != ReasonSuccess || props != nil) {
		body = append(body, reasonCode)
		body = appendProperties(body, props)
	}
	header := FixedHeader{PacketType: packetType, Flags: flags, Remaining: len(body)}
	dst = header.appendTo(dst)
	return append(dst, body...)
}

type ackFields struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func decodeAckFields(buf []byte, version uint8) (ackFields, error) {
	if len(buf) < 2 {
		return ackFields{}, decodeErr("IncompletePacket", "packet id")
	}
	f := ackFields{PacketID: binary.BigEndian.Uint16(buf)}
	if version >= Version5 && len(buf) > 2 {
		f.ReasonCode = buf[2]
		if len(buf) > 3 {
			props, _, err := decodeProperties(buf[3:])
			if err != nil {
				return ackFields{}, err
			}
			f.Properties = props
		}
	}
	return f, nil
}
