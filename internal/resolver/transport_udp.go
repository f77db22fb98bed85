package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

// maxUDPPayload is the largest datagram this resolver will send without
// falling back to TCP (spec §4.F Transport:UDP).
const maxUDPPayload = 512

// errOverflowUDP signals that a message is too large for this transport
// but may still fit on TCP; the worker distinguishes it from a generic
// send failure so it can hand the task to the TCP worker instead of
// rejecting it outright.
var errOverflowUDP = errors.New("resolver: message exceeds UDP payload limit")

// udpTransport is an unbound datagram socket paired with one remote
// server address. Open binds a local socket matching the server's address
// family; every send targets the configured server, every receive accepts
// any datagram that arrives on it, mirroring the source's permissive
// recvfrom behaviour (no per-datagram source-address filtering).
type udpTransport struct {
	conn   *net.UDPConn
	server *net.UDPAddr
	evCh   chan event
	logger *slog.Logger
}

func dialUDP(cfg Config) (transport, error) {
	network := "udp4"
	if cfg.isIPv6() {
		network = "udp6"
	}
	server, err := net.ResolveUDPAddr(network, cfg.serverAddrString())
	if err != nil {
		return nil, err
	}
	// SO_REUSEADDR lets this worker rebind its local ephemeral port
	// immediately after a transport close instead of stalling in TIME_WAIT,
	// the same call shape as reuseport_unix.go's setReusePort.
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = setReuseAddr(fd)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), network, "")
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)
	t := &udpTransport{
		conn:   conn,
		server: server,
		evCh:   make(chan event, 16),
		logger: cfg.Logger,
	}
	go t.readLoop()
	return t, nil
}

func (t *udpTransport) readLoop() {
	defer close(t.evCh)
	buf := make([]byte, 65535)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			t.evCh <- event{kind: evClosed, graceful: false, err: err, errKind: KindOther}
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		msg := dnswire.DecodeMessage(raw)
		t.evCh <- event{kind: evResponse, msg: msg, raw: raw}
	}
}

func (t *udpTransport) send(data []byte) error {
	if len(data) > maxUDPPayload {
		return errOverflowUDP
	}
	_, err := t.conn.WriteToUDP(data, t.server)
	if err != nil {
		return newError(KindOther, err)
	}
	return nil
}

func (t *udpTransport) events() <-chan event { return t.evCh }

func (t *udpTransport) close() error {
	return t.conn.Close()
}
