package session

import "github.com/Azure/iot-operations-sdk-go/internal/wire"

// Capabilities is the set of server-negotiated limits extracted from a
// CONNACK, supplementing spec.md §3's "negotiated server properties"
// with the full set original_source/.../mqtt_proto/connack.rs exposes
// via its Effective* accessors.
type Capabilities struct {
	RetainAvailable                 bool
	MaximumQoS                      uint8
	WildcardSubscriptionAvailable   bool
	SharedSubscriptionAvailable     bool
	SubscriptionIdentifierAvailable bool
	ReceiveMaximum                  uint16
	MaximumPacketSize               uint32
	SessionExpiryInterval           uint32
}

// capabilitiesFromConnack extracts Capabilities from a CONNACK,
// applying spec.md §4.1 defaults for every absent property.
func capabilitiesFromConnack(ack *wire.Connack, requestedSessionExpiry uint32) Capabilities {
	return Capabilities{
		RetainAvailable:                 ack.EffectiveRetainAvailable(),
		MaximumQoS:                      ack.EffectiveMaximumQoS(),
		WildcardSubscriptionAvailable:   ack.EffectiveWildcardSubscriptionAvailable(),
		SharedSubscriptionAvailable:     ack.EffectiveSharedSubscriptionAvailable(),
		SubscriptionIdentifierAvailable: ack.EffectiveSubscriptionIdentifierAvailable(),
		ReceiveMaximum:                  ack.EffectiveReceiveMaximum(),
		MaximumPacketSize:               ack.EffectiveMaximumPacketSize(),
		SessionExpiryInterval:           ack.EffectiveSessionExpiryInterval(requestedSessionExpiry),
	}
}
