package distribution

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"

	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// Transport is a framed, bidirectional message stream to one remote worker.
// It is the seam mocked by tests exercising the handshake and track
// lifecycle without a real socket.
type Transport interface {
	Send(Message) error
	Recv() (Message, error)
	Close() error
}

// connTransport adapts a net.Conn (optionally TLS-wrapped) to Transport,
// framing every message with WriteFrame/ReadFrame.
type connTransport struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
}

func newConnTransport(conn net.Conn) *connTransport {
	return &connTransport{conn: conn, r: bufio.NewReader(conn)}
}

func (t *connTransport) Send(msg Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return WriteFrame(t.conn, msg)
}

func (t *connTransport) Recv() (Message, error) {
	return ReadFrame(t.r)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

// DialOptions configures how Start reaches a remote worker.
type DialOptions struct {
	// Addresses is the ordered list of candidate addresses to try.
	Addresses []string
	// TLS, when non-nil, upgrades every successful TCP connection to TLS
	// 1.3 using this config. The
	// certificate bundle / root store is an external collaborator
	// concern; callers
	// supply a ready *tls.Config, typically built from the built-in
	// bundle.
	TLS *tls.Config
}

// dial iterates the candidate address list, returning the first
// successful connection.
func dial(ctx context.Context, opts DialOptions) (Transport, error) {
	var dialer net.Dialer
	var lastErr error
	for _, addr := range opts.Addresses {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		if opts.TLS != nil {
			tconn := tls.Client(conn, opts.TLS)
			if err := tconn.HandshakeContext(ctx); err != nil {
				_ = conn.Close()
				lastErr = err
				continue
			}
			return newConnTransport(tconn), nil
		}
		return newConnTransport(conn), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate addresses supplied")
	}
	return nil, fmt.Errorf("%w: %v", errNoAddress, lastErr)
}

var errNoAddress = pkgerrors.NewDistributionNoAddress("dial")

// DefaultTLSConfig builds a minimal TLS 1.3 client config trusting the
// host's system root store. A bespoke built-in certificate bundle is an
// external collaborator concern; this only fixes the minimum negotiated protocol version.
func DefaultTLSConfig(serverName string) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	return &tls.Config{
		ServerName: serverName,
		RootCAs:    pool,
		MinVersion: tls.VersionTLS13,
	}, nil
}
