package wire

// FixedHeader is the one-to-five-byte header present on every control
// packet: packet type + flags, followed by the Remaining Length
// variable byte integer.
type FixedHeader struct {
	PacketType uint8
	Flags      uint8
	Remaining  int
}

func (h FixedHeader) appendTo(dst []byte) []byte {
	dst = append(dst, (h.PacketType<<4)|(h.Flags&0x0F))
	return appendVarInt(dst, h.Remaining)
}

// decodeFixedHeader reads the fixed header from the start of buf,
// returning the header and bytes consumed.
func decodeFixedHeader(buf []byte) (FixedHeader, int, error) {
	if len(buf) < 1 {
		return FixedHeader{}, 0, decodeErr("IncompletePacket", "fixed header")
	}
	remaining, n, err := decodeVarInt(buf[1:])
	if err != nil {
		return FixedHeader{}, 0, err
	}
	return FixedHeader{
		PacketType: buf[0] >> 4,
		Flags:      buf[0] & 0x0F,
		Remaining:  remaining,
	}, 1 + n, nil
}
