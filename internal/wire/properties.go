package wire

import "encoding/binary"

// Property identifiers, MQTT v5 section 2.2.2.2.
const (
	PropPayloadFormatIndicator          uint8 = 0x01
	PropMessageExpiryInterval           uint8 = 0x02
	PropContentType                     uint8 = 0x03
	PropResponseTopic                   uint8 = 0x08
	PropCorrelationData                 uint8 = 0x09
	PropSubscriptionIdentifier          uint8 = 0x0B
	PropSessionExpiryInterval           uint8 = 0x11
	PropAssignedClientIdentifier        uint8 = 0x12
	PropServerKeepAlive                 uint8 = 0x13
	PropAuthenticationMethod            uint8 = 0x15
	PropAuthenticationData              uint8 = 0x16
	PropRequestProblemInformation       uint8 = 0x17
	PropWillDelayInterval                uint8 = 0x18
	PropRequestResponseInformation      uint8 = 0x19
	PropResponseInformation             uint8 = 0x1A
	PropServerReference                 uint8 = 0x1C
	PropReasonString                    uint8 = 0x1F
	PropReceiveMaximum                  uint8 = 0x21
	PropTopicAliasMaximum               uint8 = 0x22
	PropTopicAlias                      uint8 = 0x23
	PropMaximumQoS                      uint8 = 0x24
	PropRetainAvailable                 uint8 = 0x25
	PropUserProperty                    uint8 = 0x26
	PropMaximumPacketSize               uint8 = 0x27
	PropWildcardSubscriptionAvailable   uint8 = 0x28
	PropSubscriptionIdentifierAvailable uint8 = 0x29
	PropSharedSubscriptionAvailable     uint8 = 0x2A
)

// Presence bits, one per scalar property. List-valued properties
// (UserProperty, SubscriptionIdentifier) don't need one: duplicates are
// legal and simply append.
const (
	presPayloadFormatIndicator uint32 = 1 << iota
	presMessageExpiryInterval
	presContentType
	presResponseTopic
	presCorrelationData
	presSessionExpiryInterval
	presAssignedClientIdentifier
	presServerKeepAlive
	presAuthenticationMethod
	presAuthenticationData
	presRequestProblemInformation
	presWillDelayInterval
	presRequestResponseInformation
	presResponseInformation
	presServerReference
	presReasonString
	presReceiveMaximum
	presTopicAliasMaximum
	presTopicAlias
	presMaximumQoS
	presRetainAvailable
	presMaximumPacketSize
	presWildcardSubscriptionAvailable
	presSubscriptionIdentifierAvailable
	presSharedSubscriptionAvailable
)

// UserProperty is an MQTT v5 user property key/value pair.
type UserProperty struct {
	Key   string
	Value string
}

// Properties holds every MQTT v5 property that can appear on any
// packet type; individual packet encoders only emit the subset that is
// legal for their packet type, and decoders only ever see the subset
// the wire actually sent.
type Properties struct {
	presence uint32

	PayloadFormatIndicator     uint8
	MessageExpiryInterval      uint32
	ContentType                string
	ResponseTopic              string
	CorrelationData            []byte
	SubscriptionIdentifier     []int
	SessionExpiryInterval      uint32
	AssignedClientIdentifier   string
	ServerKeepAlive            uint16
	AuthenticationMethod       string
	AuthenticationData         []byte
	RequestProblemInformation  uint8
	WillDelayInterval          uint32
	RequestResponseInformation uint8
	ResponseInformation        string
	ServerReference            string
	ReasonString               string
	ReceiveMaximum             uint16
	TopicAliasMaximum          uint16
	TopicAlias                 uint16
	MaximumQoS                 uint8
	RetainAvailable            bool
	UserProperties             []UserProperty
	MaximumPacketSize          uint32
	WildcardSubscriptionAvailable   bool
	SubscriptionIdentifierAvailable bool
	SharedSubscriptionAvailable     bool
}

func (p *Properties) has(bit uint32) bool  { return p.presence&bit != 0 }
func (p *Properties) set(bit uint32)       { p.presence |= bit }

// Has reports whether the named optional property was present on the
// decoded packet, distinguishing "absent" from "present with zero
// value" for callers that need v5 defaulting semantics (connack.go).
func (p *Properties) Has(id uint8) bool {
	if p == nil {
		return false
	}
	return p.presence&propPresenceBit(id) != 0
}

// SetPresent marks a scalar property as present so it gets encoded
// even when its value is the zero value (e.g. session-expiry-interval
// of 0 to request a transient session). Callers outside this package
// build properties by setting the field then calling SetPresent for
// each one they want emitted; list-valued properties (UserProperty,
// SubscriptionIdentifier) are always emitted when non-empty and need
// no presence bit.
func (p *Properties) SetPresent(id uint8) { p.set(propPresenceBit(id)) }

func propPresenceBit(id uint8) uint32 {
	switch id {
	case PropPayloadFormatIndicator:
		return presPayloadFormatIndicator
	case PropMessageExpiryInterval:
		return presMessageExpiryInterval
	case PropContentType:
		return presContentType
	case PropResponseTopic:
		return presResponseTopic
	case PropCorrelationData:
		return presCorrelationData
	case PropSessionExpiryInterval:
		return presSessionExpiryInterval
	case PropAssignedClientIdentifier:
		return presAssignedClientIdentifier
	case PropServerKeepAlive:
		return presServerKeepAlive
	case PropAuthenticationMethod:
		return presAuthenticationMethod
	case PropAuthenticationData:
		return presAuthenticationData
	case PropRequestProblemInformation:
		return presRequestProblemInformation
	case PropWillDelayInterval:
		return presWillDelayInterval
	case PropRequestResponseInformation:
		return presRequestResponseInformation
	case PropResponseInformation:
		return presResponseInformation
	case PropServerReference:
		return presServerReference
	case PropReasonString:
		return presReasonString
	case PropReceiveMaximum:
		return presReceiveMaximum
	case PropTopicAliasMaximum:
		return presTopicAliasMaximum
	case PropTopicAlias:
		return presTopicAlias
	case PropMaximumQoS:
		return presMaximumQoS
	case PropRetainAvailable:
		return presRetainAvailable
	case PropMaximumPacketSize:
		return presMaximumPacketSize
	case PropWildcardSubscriptionAvailable:
		return presWildcardSubscriptionAvailable
	case PropSubscriptionIdentifierAvailable:
		return presSubscriptionIdentifierAvailable
	case PropSharedSubscriptionAvailable:
		return presSharedSubscriptionAvailable
	default:
		return 0
	}
}

// appendProperties appends the length-prefixed properties block.
func appendProperties(dst []byte, p *Properties) []byte {
	if p == nil {
		return append(dst, 0x00)
	}
	var body []byte
	body = p.appendNumeric(body)
	body = p.appendBoolAndString(body)
	body = p.appendLists(body)

	dst = appendVarInt(dst, len(body))
	return append(dst, body...)
}

func (p *Properties) appendNumeric(dst []byte) []byte {
	if p.has(presPayloadFormatIndicator) {
		dst = append(dst, PropPayloadFormatIndicator, p.PayloadFormatIndicator)
	}
	if p.has(presMessageExpiryInterval) {
		dst = append(dst, PropMessageExpiryInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.MessageExpiryInterval)
	}
	if p.has(presSessionExpiryInterval) {
		dst = append(dst, PropSessionExpiryInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.SessionExpiryInterval)
	}
	if p.has(presServerKeepAlive) {
		dst = append(dst, PropServerKeepAlive)
		dst = binary.BigEndian.AppendUint16(dst, p.ServerKeepAlive)
	}
	if p.has(presRequestProblemInformation) {
		dst = append(dst, PropRequestProblemInformation, p.RequestProblemInformation)
	}
	if p.has(presWillDelayInterval) {
		dst = append(dst, PropWillDelayInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.WillDelayInterval)
	}
	if p.has(presRequestResponseInformation) {
		dst = append(dst, PropRequestResponseInformation, p.RequestResponseInformation)
	}
	if p.has(presReceiveMaximum) {
		dst = append(dst, PropReceiveMaximum)
		dst = binary.BigEndian.AppendUint16(dst, p.ReceiveMaximum)
	}
	if p.has(presTopicAliasMaximum) {
		dst = append(dst, PropTopicAliasMaximum)
		dst = binary.BigEndian.AppendUint16(dst, p.TopicAliasMaximum)
	}
	if p.has(presTopicAlias) {
		dst = append(dst, PropTopicAlias)
		dst = binary.BigEndian.AppendUint16(dst, p.TopicAlias)
	}
	if p.has(presMaximumQoS) {
		dst = append(dst, PropMaximumQoS, p.MaximumQoS)
	}
	if p.has(presMaximumPacketSize) {
		dst = append(dst, PropMaximumPacketSize)
		dst = binary.BigEndian.AppendUint32(dst, p.MaximumPacketSize)
	}
	return dst
}

func (p *Properties) appendBoolAndString(dst []byte) []byte {
	appendBool := func(dst []byte, id uint8, v bool) []byte {
		b := byte(0)
		if v {
			b = 1
		}
		return append(dst, id, b)
	}
	if p.has(presRetainAvailable) {
		dst = appendBool(dst, PropRetainAvailable, p.RetainAvailable)
	}
	if p.has(presWildcardSubscriptionAvailable) {
		dst = appendBool(dst, PropWildcardSubscriptionAvailable, p.WildcardSubscriptionAvailable)
	}
	if p.has(presSubscriptionIdentifierAvailable) {
		dst = appendBool(dst, PropSubscriptionIdentifierAvailable, p.SubscriptionIdentifierAvailable)
	}
	if p.has(presSharedSubscriptionAvailable) {
		dst = appendBool(dst, PropSharedSubscriptionAvailable, p.SharedSubscriptionAvailable)
	}
	if p.has(presContentType) {
		dst = append(dst, PropContentType)
		dst = appendString(dst, p.ContentType)
	}
	if p.has(presResponseTopic) {
		dst = append(dst, PropResponseTopic)
		dst = appendString(dst, p.ResponseTopic)
	}
	if p.has(presCorrelationData) {
		dst = append(dst, PropCorrelationData)
		dst = appendBinary(dst, p.CorrelationData)
	}
	if p.has(presAssignedClientIdentifier) {
		dst = append(dst, PropAssignedClientIdentifier)
		dst = appendString(dst, p.AssignedClientIdentifier)
	}
	if p.has(presAuthenticationMethod) {
		dst = append(dst, PropAuthenticationMethod)
		dst = appendString(dst, p.AuthenticationMethod)
	}
	if p.has(presAuthenticationData) {
		dst = append(dst, PropAuthenticationData)
		dst = appendBinary(dst, p.AuthenticationData)
	}
	if p.has(presResponseInformation) {
		dst = append(dst, PropResponseInformation)
		dst = appendString(dst, p.ResponseInformation)
	}
	if p.has(presServerReference) {
		dst = append(dst, PropServerReference)
		dst = appendString(dst, p.ServerReference)
	}
	if p.has(presReasonString) {
		dst = append(dst, PropReasonString)
		dst = appendString(dst, p.ReasonString)
	}
	return dst
}

func (p *Properties) appendLists(dst []byte) []byte {
	for _, id := range p.SubscriptionIdentifier {
		dst = append(dst, PropSubscriptionIdentifier)
		dst = appendVarInt(dst, id)
	}
	for _, up := range p.UserProperties {
		dst = append(dst, PropUserProperty)
		dst = appendString(dst, up.Key)
		dst = appendString(dst, up.Value)
	}
	return dst
}

// decodeProperties reads a length-prefixed properties block from buf,
// returning the decoded properties (nil if none present) and the
// number of bytes consumed (including the length prefix).
func decodeProperties(buf []byte) (*Properties, int, error) {
	length, n, err := decodeVarInt(buf)
	if err != nil {
		return nil, 0, err
	}
	total := n + length
	if len(buf) < total {
		return nil, 0, decodeErr("IncompletePacket", "properties")
	}
	if length == 0 {
		return nil, total, nil
	}

	p := &Properties{}
	body := buf[n:total]
	off := 0
	for off < len(body) {
		id := body[off]
		off++
		consumed, err := p.decodeOne(id, body[off:])
		if err != nil {
			return nil, 0, err
		}
		off += consumed
	}
	return p, total, nil
}

func (p *Properties) decodeOne(id uint8, buf []byte) (int, error) {
	bit := propPresenceBit(id)
	checkDup := func(name string) error {
		if bit != 0 && p.has(bit) {
			return DuplicateProperty(name)
		}
		return nil
	}

	switch id {
	case PropPayloadFormatIndicator:
		if err := checkDup("PayloadFormatIndicator"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "PayloadFormatIndicator")
		}
		p.PayloadFormatIndicator = buf[0]
		p.set(bit)
		return 1, nil
	case PropMessageExpiryInterval:
		if err := checkDup("MessageExpiryInterval"); err != nil {
			return 0, err
		}
		if len(buf) < 4 {
			return 0, decodeErr("IncompletePacket", "MessageExpiryInterval")
		}
		p.MessageExpiryInterval = binary.BigEndian.Uint32(buf)
		p.set(bit)
		return 4, nil
	case PropContentType:
		if err := checkDup("ContentType"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.ContentType = s
		p.set(bit)
		return n, nil
	case PropResponseTopic:
		if err := checkDup("ResponseTopic"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.ResponseTopic = s
		p.set(bit)
		return n, nil
	case PropCorrelationData:
		if err := checkDup("CorrelationData"); err != nil {
			return 0, err
		}
		d, n, err := decodeBinary(buf)
		if err != nil {
			return 0, err
		}
		p.CorrelationData = d
		p.set(bit)
		return n, nil
	case PropSubscriptionIdentifier:
		v, n, err := decodeVarInt(buf)
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 0, decodeErr("InvalidSubscriptionIdentifier", "must be >= 1")
		}
		p.SubscriptionIdentifier = append(p.SubscriptionIdentifier, v)
		return n, nil
	case PropSessionExpiryInterval:
		if err := checkDup("SessionExpiryInterval"); err != nil {
			return 0, err
		}
		if len(buf) < 4 {
			return 0, decodeErr("IncompletePacket", "SessionExpiryInterval")
		}
		p.SessionExpiryInterval = binary.BigEndian.Uint32(buf)
		p.set(bit)
		return 4, nil
	case PropAssignedClientIdentifier:
		if err := checkDup("AssignedClientIdentifier"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.AssignedClientIdentifier = s
		p.set(bit)
		return n, nil
	case PropServerKeepAlive:
		if err := checkDup("ServerKeepAlive"); err != nil {
			return 0, err
		}
		if len(buf) < 2 {
			return 0, decodeErr("IncompletePacket", "ServerKeepAlive")
		}
		p.ServerKeepAlive = binary.BigEndian.Uint16(buf)
		p.set(bit)
		return 2, nil
	case PropAuthenticationMethod:
		if err := checkDup("AuthenticationMethod"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.AuthenticationMethod = s
		p.set(bit)
		return n, nil
	case PropAuthenticationData:
		if err := checkDup("AuthenticationData"); err != nil {
			return 0, err
		}
		d, n, err := decodeBinary(buf)
		if err != nil {
			return 0, err
		}
		p.AuthenticationData = d
		p.set(bit)
		return n, nil
	case PropRequestProblemInformation:
		if err := checkDup("RequestProblemInformation"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "RequestProblemInformation")
		}
		p.RequestProblemInformation = buf[0]
		p.set(bit)
		return 1, nil
	case PropWillDelayInterval:
		if err := checkDup("WillDelayInterval"); err != nil {
			return 0, err
		}
		if len(buf) < 4 {
			return 0, decodeErr("IncompletePacket", "WillDelayInterval")
		}
		p.WillDelayInterval = binary.BigEndian.Uint32(buf)
		p.set(bit)
		return 4, nil
	case PropRequestResponseInformation:
		if err := checkDup("RequestResponseInformation"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "RequestResponseInformation")
		}
		p.RequestResponseInformation = buf[0]
		p.set(bit)
		return 1, nil
	case PropResponseInformation:
		if err := checkDup("ResponseInformation"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.ResponseInformation = s
		p.set(bit)
		return n, nil
	case PropServerReference:
		if err := checkDup("ServerReference"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.ServerReference = s
		p.set(bit)
		return n, nil
	case PropReasonString:
		if err := checkDup("ReasonString"); err != nil {
			return 0, err
		}
		s, n, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		p.ReasonString = s
		p.set(bit)
		return n, nil
	case PropReceiveMaximum:
		if err := checkDup("ReceiveMaximum"); err != nil {
			return 0, err
		}
		if len(buf) < 2 {
			return 0, decodeErr("IncompletePacket", "ReceiveMaximum")
		}
		p.ReceiveMaximum = binary.BigEndian.Uint16(buf)
		p.set(bit)
		return 2, nil
	case PropTopicAliasMaximum:
		if err := checkDup("TopicAliasMaximum"); err != nil {
			return 0, err
		}
		if len(buf) < 2 {
			return 0, decodeErr("IncompletePacket", "TopicAliasMaximum")
		}
		p.TopicAliasMaximum = binary.BigEndian.Uint16(buf)
		p.set(bit)
		return 2, nil
	case PropTopicAlias:
		if err := checkDup("TopicAlias"); err != nil {
			return 0, err
		}
		if len(buf) < 2 {
			return 0, decodeErr("IncompletePacket", "TopicAlias")
		}
		p.TopicAlias = binary.BigEndian.Uint16(buf)
		p.set(bit)
		return 2, nil
	case PropMaximumQoS:
		if err := checkDup("MaximumQoS"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "MaximumQoS")
		}
		p.MaximumQoS = buf[0]
		p.set(bit)
		return 1, nil
	case PropRetainAvailable:
		if err := checkDup("RetainAvailable"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "RetainAvailable")
		}
		p.RetainAvailable = buf[0] != 0
		p.set(bit)
		return 1, nil
	case PropUserProperty:
		k, n1, err := decodeString(buf)
		if err != nil {
			return 0, err
		}
		v, n2, err := decodeString(buf[n1:])
		if err != nil {
			return 0, err
		}
		p.UserProperties = append(p.UserProperties, UserProperty{Key: k, Value: v})
		return n1 + n2, nil
	case PropMaximumPacketSize:
		if err := checkDup("MaximumPacketSize"); err != nil {
			return 0, err
		}
		if len(buf) < 4 {
			return 0, decodeErr("IncompletePacket", "MaximumPacketSize")
		}
		p.MaximumPacketSize = binary.BigEndian.Uint32(buf)
		p.set(bit)
		return 4, nil
	case PropWildcardSubscriptionAvailable:
		if err := checkDup("WildcardSubscriptionAvailable"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "WildcardSubscriptionAvailable")
		}
		p.WildcardSubscriptionAvailable = buf[0] != 0
		p.set(bit)
		return 1, nil
	case PropSubscriptionIdentifierAvailable:
		if err := checkDup("SubscriptionIdentifierAvailable"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "SubscriptionIdentifierAvailable")
		}
		p.SubscriptionIdentifierAvailable = buf[0] != 0
		p.set(bit)
		return 1, nil
	case PropSharedSubscriptionAvailable:
		if err := checkDup("SharedSubscriptionAvailable"); err != nil {
			return 0, err
		}
		if len(buf) < 1 {
			return 0, decodeErr("IncompletePacket", "SharedSubscriptionAvailable")
		}
		p.SharedSubscriptionAvailable = buf[0] != 0
		p.set(bit)
		return 1, nil
	default:
		return 0, decodeErr("UnrecognizedProperty", "")
	}
}
