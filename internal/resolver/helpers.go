package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/arrowhead-go/core-dns/internal/dnswire"
)

// query is a small internal helper shared by the typed Resolve* methods:
// build a single-question Message with a fresh ID and submit it.
func (s *Socket) query(ctx context.Context, name string, qtype dnswire.RRType) (*dnswire.Message, error) {
	msg := dnswire.NewMessage(nextQueryID())
	msg.Flags.RD = true
	msg.Question = []dnswire.RR{dnswire.Question(name, qtype)}
	return s.Send(ctx, msg)
}

var (
	queryIDMu  sync.Mutex
	queryIDNxt uint16 = 1
)

// nextQueryID hands out a small sequence of transaction IDs for the typed
// helpers below; a caller building its own Message is free to pick any ID
// directly via Send. IDs wrap at 65535 back to 1 (0 is never handed out),
// so two concurrent callers on the same Socket could in principle collide
// after 65535 calls and surface RequestIDInUse; acceptable given Socket's
// per-instance ID-uniqueness contract, not a correctness problem.
func nextQueryID() uint16 {
	queryIDMu.Lock()
	defer queryIDMu.Unlock()
	queryIDNxt++
	if queryIDNxt == 0 {
		queryIDNxt = 1
	}
	return queryIDNxt
}

// ResolvePTR resolves a PTR record, the DNS-SD/reverse-lookup record
// type used to map a service instance or address name to its target.
func (s *Socket) ResolvePTR(ctx context.Context, name string) ([]string, error) {
	msg, err := s.query(ctx, name, dnswire.TypePTR)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range msg.Answer {
		if ptr, ok := rr.RDATA.(dnswire.NameRDATA); ok && rr.Type == dnswire.TypePTR {
			out = append(out, ptr.Name)
		}
	}
	return out, nil
}

// ResolveSRV resolves a SRV record, used by DNS-SD to learn a service
// instance's target host, port and priority/weight.
func (s *Socket) ResolveSRV(ctx context.Context, name string) ([]dnswire.SRV, error) {
	msg, err := s.query(ctx, name, dnswire.TypeSRV)
	if err != nil {
		return nil, err
	}
	var out []dnswire.SRV
	for _, rr := range msg.Answer {
		if srv, ok := rr.RDATA.(dnswire.SRV); ok && rr.Type == dnswire.TypeSRV {
			out = append(out, srv)
		}
	}
	return out, nil
}

// ResolveTXT resolves a TXT record, used by DNS-SD to carry a service
// instance's key/value metadata.
func (s *Socket) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	msg, err := s.query(ctx, name, dnswire.TypeTXT)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range msg.Answer {
		if txt, ok := rr.RDATA.(dnswire.TXT); ok && rr.Type == dnswire.TypeTXT {
			out = append(out, txt.Joined())
		}
	}
	return out, nil
}

// Reverse resolves the PTR record for ip's in-addr.arpa/ip6.arpa name.
func (s *Socket) Reverse(ctx context.Context, ip net.IP) ([]string, error) {
	name, err := reverseName(ip)
	if err != nil {
		return nil, err
	}
	return s.ResolvePTR(ctx, name)
}

func reverseName(ip net.IP) (string, error) {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa.", v4[3], v4[2], v4[1], v4[0]), nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return "", newError(KindOther, fmt.Errorf("resolver: %v is not a valid IP", ip))
	}
	var b strings.Builder
	for i := len(v6) - 1; i >= 0; i-- {
		b.WriteString(fmt.Sprintf("%x.%x.", v6[i]&0x0F, v6[i]>>4))
	}
	b.WriteString("ip6.arpa.")
	return b.String(), nil
}

// sendAllResult pairs a submitted message with its eventual outcome, so
// callers of SendAll can match responses back to requests by position.
type sendAllResult struct {
	Msg *dnswire.Message
	Err error
}

// SendAll fans messages out concurrently and waits for every one to
// settle, returning results in the same order as the input. Each message
// still goes through this Socket's own ID-uniqueness and transport-
// selection rules; a duplicate ID among the batch fails that one entry
// with RequestIDInUse without affecting the others.
func (s *Socket) SendAll(ctx context.Context, messages []*dnswire.Message) []sendAllResult {
	results := make([]sendAllResult, len(messages))
	var wg sync.WaitGroup
	wg.Add(len(messages))
	for i, msg := range messages {
		i, msg := i, msg
		go func() {
			defer wg.Done()
			m, err := s.Send(ctx, msg)
			results[i] = sendAllResult{Msg: m, Err: err}
		}()
	}
	wg.Wait()
	return results
}
