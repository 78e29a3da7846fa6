// Package notify implements the one-shot completion notifier shared by
// every outgoing operation that needs one (SUBSCRIBE, UNSUBSCRIBE,
// PUBLISH QoS1/2, PUBREC-accept, PUBREL, AUTH — spec.md §3). Modeled
// on the teacher's token.go, generalized to carry whatever response
// packet the operation resolves to instead of only an error.
package notify

import (
	"context"
	"sync"
)

// Result is what a Notifier resolves to: the response packet (nil if
// the operation was cancelled) and/or an error.
type Result struct {
	Packet any // *wire.Suback, *wire.Unsuback, *wire.Puback, *wire.Pubcomp, *wire.Auth, ...
	Err    error
}

// Notifier is a one-shot completion signal. The session task is the
// only writer; application goroutines are weak observers that may
// drop the Notifier without synchronizing with the session (spec.md
// §9, "Ownership of inflight entries").
type Notifier struct {
	done chan struct{}
	once sync.Once
	res  Result
}

// New creates an incomplete Notifier.
func New() *Notifier {
	return &Notifier{done: make(chan struct{})}
}

// Complete resolves the notifier exactly once; later calls are no-ops,
// matching the "cancellation is silent" rule in spec.md §5.
func (n *Notifier) Complete(res Result) {
	n.once.Do(func() {
		n.res = res
		close(n.done)
	})
}

// Cancel resolves the notifier with err and no packet.
func (n *Notifier) Cancel(err error) { n.Complete(Result{Err: err}) }

// Done returns a channel that closes when the notifier resolves.
func (n *Notifier) Done() <-chan struct{} { return n.done }

// Result returns the resolved result; only meaningful after Done()
// has fired.
func (n *Notifier) Result() Result { return n.res }

// Wait blocks until the notifier resolves or ctx is cancelled.
func (n *Notifier) Wait(ctx context.Context) (Result, error) {
	select {
	case <-n.done:
		return n.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
