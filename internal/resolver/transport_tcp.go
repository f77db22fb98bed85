package resolver

import (
	"bufio"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

// tcpFrameState is the two-state parser RFC 1035 §4.2.2 requires for
// stream-framed messages: a 2-byte big-endian length prefix, then exactly
// that many body bytes.
type tcpFrameState int

const (
	readLength tcpFrameState = iota
	readBody
)

// tcpTransport is a single dialed connection. Its read loop enforces an
// idle deadline of cfg.TimeoutMS: no bytes within that window is reported
// as a distinct timeout event, separate from a decode or connection error.
type tcpTransport struct {
	conn    net.Conn
	evCh    chan event
	logger  *slog.Logger
	timeout time.Duration
}

func dialTCP(cfg Config) (transport, error) {
	conn, err := net.DialTimeout("tcp", cfg.serverAddrString(), time.Duration(cfg.TimeoutMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	t := &tcpTransport{
		conn:    conn,
		evCh:    make(chan event, 16),
		logger:  cfg.Logger,
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
	go t.readLoop()
	return t, nil
}

func (t *tcpTransport) readLoop() {
	defer close(t.evCh)
	r := bufio.NewReader(t.conn)
	state := readLength
	var bodyLen int

	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			t.evCh <- event{kind: evClosed, graceful: false, err: err, errKind: KindOther}
			return
		}

		switch state {
		case readLength:
			var lenBuf [2]byte
			if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
				if isTimeout(err) {
					t.evCh <- event{kind: evTimeout}
					t.evCh <- event{kind: evClosed, graceful: false}
					return
				}
				t.evCh <- event{kind: evClosed, graceful: err == io.EOF}
				return
			}
			bodyLen = int(binary.BigEndian.Uint16(lenBuf[:]))
			state = readBody
		case readBody:
			body := make([]byte, bodyLen)
			if _, err := io.ReadFull(r, body); err != nil {
				if isTimeout(err) {
					t.evCh <- event{kind: evTimeout}
					t.evCh <- event{kind: evClosed, graceful: false}
					return
				}
				t.evCh <- event{kind: evError, err: err, errKind: KindResponseMalformed}
				t.evCh <- event{kind: evClosed, graceful: false}
				return
			}
			msg := dnswire.DecodeMessage(body)
			t.evCh <- event{kind: evResponse, msg: msg, raw: body}
			state = readLength
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// send frames data with a 2-byte big-endian length prefix (RFC 1035
// §4.2.2) and writes it in one call.
func (t *tcpTransport) send(data []byte) error {
	framed := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(framed, uint16(len(data)))
	copy(framed[2:], data)
	if _, err := t.conn.Write(framed); err != nil {
		return newError(KindOther, err)
	}
	return nil
}

func (t *tcpTransport) events() <-chan event { return t.evCh }

func (t *tcpTransport) close() error {
	return t.conn.Close()
}
