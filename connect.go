package mqtt

import (
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// buildConnect constructs the CONNECT packet for the next connect
// attempt, including the Azure IoT Operations broker feature hint
// carried as CONNECT user properties. Grounded on the teacher's
// client.go connect(), which builds a ConnectPacket from clientOptions
// on every (re)connect.
func (s *Session) buildConnect(cleanStart bool) (*wire.Connect, uint32, error) {
	props := &wire.Properties{}
	requestedExpiry := s.opts.SessionExpiryInterval
	if requestedExpiry > 0 {
		props.SessionExpiryInterval = requestedExpiry
		props.SetPresent(wire.PropSessionExpiryInterval)
	}

	props.UserProperties = append(props.UserProperties,
		wire.UserProperty{Key: "metriccategory", Value: "aiosdk-go"})
	if s.settings.AioBrokerFeatures.Persistence {
		props.UserProperties = append(props.UserProperties,
			wire.UserProperty{Key: "aio-persistence", Value: "true"})
	}

	pkt := &wire.Connect{
		Version:    wire.Version5,
		CleanStart: cleanStart,
		KeepAlive:  keepAliveSeconds(s.settings.KeepAlive.Nanoseconds()),
		ClientID:   s.settings.ClientID,
		Properties: props,
	}

	if s.settings.Username != "" {
		pkt.HasUsername = true
		pkt.Username = s.settings.Username
	}

	authData, err := s.connectAuthData()
	if err != nil {
		return nil, 0, err
	}
	if authData != nil {
		props.AuthenticationMethod = s.opts.EnhancedAuthPolicy.Method()
		props.SetPresent(wire.PropAuthenticationMethod)
		props.AuthenticationData = authData
		props.SetPresent(wire.PropAuthenticationData)
	} else if s.settings.Password != "" {
		pkt.HasPassword = true
		pkt.Password = s.settings.Password
	}

	if w := s.settings.Will; w != nil {
		pkt.WillFlag = true
		pkt.WillQoS = w.QoS
		pkt.WillRetain = w.Retain
		pkt.WillTopic = w.Topic
		pkt.WillPayload = w.Payload
		pkt.WillProperties = w.Properties
	}

	return pkt, requestedExpiry, nil
}

// connectAuthData returns the enhanced-auth initial data to attach to
// CONNECT, or nil if no EnhancedAuthPolicy is configured.
func (s *Session) connectAuthData() ([]byte, error) {
	if s.opts.EnhancedAuthPolicy == nil {
		return nil, nil
	}
	return s.opts.EnhancedAuthPolicy.InitialData()
}

func keepAliveSeconds(nanos int64) uint16 {
	seconds := nanos / 1e9
	if seconds < 0 {
		return 0
	}
	if seconds > 0xFFFF {
		return 0xFFFF
	}
	return uint16(seconds)
}
