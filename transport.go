package mqtt

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
)

// dialTCP establishes the transport connection for settings, using TLS
// when TLSConfig is set. Grounded on the teacher's client.go
// dialServer, minus the URL-scheme parsing: ConnectionSettings already
// separates hostname/port/TLSConfig instead of encoding them in a
// scheme string.
func dialTCP(ctx context.Context, settings ConnectionSettings) (net.Conn, error) {
	addr := net.JoinHostPort(settings.Hostname, strconv.Itoa(int(settings.TCPPort)))
	if settings.TLSConfig != nil {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: settings.TLSConfig}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
