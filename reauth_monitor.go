package mqtt

import (
	"context"
	"fmt"

	"github.com/Azure/iot-operations-sdk-go/internal/wire"
	"github.com/Azure/iot-operations-sdk-go/session"
)

// reauthMonitor implements spec.md §4.5 coroutine 3: wait for the
// configured EnhancedAuthPolicy to signal a reauth, drive the AUTH
// exchange, and loop. It never fails the run loop on its own: a
// reauth failure is expected to make the server drop the connection,
// which connectionRunner observes and handles.
func (s *Session) reauthMonitor(ctx context.Context) error {
	policy := s.opts.EnhancedAuthPolicy
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-policy.ReauthNotified():
			if !s.monitor.IsConnected() {
				continue
			}
			connCtx, cancel := context.WithCancel(ctx)
			go func() {
				select {
				case <-s.monitor.Disconnected():
					cancel()
				case <-connCtx.Done():
				}
			}()
			if err := s.performReauth(connCtx, policy); err != nil {
				s.log.Warn("mqtt: reauth exchange failed", "error", err)
			}
			cancel()
		}
	}
}

// performReauth drives one AUTH exchange to completion, feeding any
// Continue challenges back through the policy (spec.md §4.5 "feed the
// challenge back to the policy and call continue_reauth").
func (s *Session) performReauth(ctx context.Context, policy EnhancedAuthPolicy) error {
	initial, err := policy.InitialData()
	if err != nil {
		return err
	}
	initialProps := &wire.Properties{
		AuthenticationMethod: policy.Method(),
		AuthenticationData:   initial,
	}
	initialProps.SetPresent(wire.PropAuthenticationMethod)
	initialProps.SetPresent(wire.PropAuthenticationData)
	req := &session.ReauthRequest{Properties: initialProps}
	for {
		n, err := s.engine.Reauth(ctx, req)
		if err != nil {
			return err
		}
		res, err := n.Wait(ctx)
		if err != nil {
			return err
		}
		if res.Err != nil {
			return res.Err
		}
		auth, ok := res.Packet.(*wire.Auth)
		if !ok {
			return fmt.Errorf("mqtt: reauth: unexpected response %T", res.Packet)
		}

		switch auth.ReasonCode {
		case wire.AuthReasonSuccess:
			return policy.Complete()
		case wire.AuthReasonContinueAuthentication:
			var challengeData []byte
			if auth.Properties != nil {
				challengeData = auth.Properties.AuthenticationData
			}
			next, err := policy.HandleChallenge(challengeData, auth.ReasonCode)
			if err != nil {
				return err
			}
			props := &wire.Properties{
				AuthenticationMethod: policy.Method(),
				AuthenticationData:   next,
			}
			props.SetPresent(wire.PropAuthenticationMethod)
			props.SetPresent(wire.PropAuthenticationData)
			req = &session.ReauthRequest{Properties: props, Continue: true}
		default:
			return fmt.Errorf("mqtt: reauth: unexpected reason code %#x", auth.ReasonCode)
		}
	}
}
