// Package dnssd is a thin DNS-SD client built on internal/resolver. It
// composes the handful of PTR/SRV/TXT queries and the one dynamic update
// that DNS-SD actually needs; it does not implement multicast discovery
// or a browse cache of its own.
package dnssd

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/arrowhead-go/core-dns/internal/dnssig"
	"github.com/arrowhead-go/core-dns/internal/dnswire"
	"github.com/arrowhead-go/core-dns/internal/resolver"
)

// Instance is one resolved service instance: a SRV target/port pair plus
// its TXT metadata, keyed by the PTR-discovered instance name.
type Instance struct {
	Name     string
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
	Text     []string
}

// Client browses and registers DNS-SD service instances against a single
// resolver Socket.
type Client struct {
	socket *resolver.Socket
	signer *dnssig.Signer // nil for a read-only client
}

// New wraps an already-open resolver Socket. signer is optional; pass nil
// for a client that only browses/resolves and never registers.
func New(socket *resolver.Socket, signer *dnssig.Signer) *Client {
	return &Client{socket: socket, signer: signer}
}

// Browse enumerates service instances for a service type (e.g.
// "_http._tcp.example.org.") by following its PTR records, then resolves
// each instance's SRV and TXT records.
func (c *Client) Browse(ctx context.Context, serviceType string) ([]Instance, error) {
	ptrs, err := c.socket.ResolvePTR(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, len(ptrs))
	for _, name := range ptrs {
		inst, err := c.resolveInstance(ctx, name)
		if err != nil {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (c *Client) resolveInstance(ctx context.Context, name string) (Instance, error) {
	srvs, err := c.socket.ResolveSRV(ctx, name)
	if err != nil || len(srvs) == 0 {
		return Instance{}, fmt.Errorf("dnssd: no SRV record for %s", name)
	}
	srv := srvs[0]
	txt, _ := c.socket.ResolveTXT(ctx, name)
	return Instance{
		Name:     name,
		Target:   srv.Target,
		Port:     srv.Port,
		Priority: srv.Priority,
		Weight:   srv.Weight,
		Text:     txt,
	}, nil
}

// Register publishes a service instance via an RFC 2136 dynamic update:
// a prerequisite that the instance name is not already present, then an
// add for its PTR, SRV and TXT records. The update is signed with the
// client's TSIG signer if one was configured.
func (c *Client) Register(ctx context.Context, zone, serviceType, instanceName, target string, port uint16, text []string) error {
	if c.signer == nil {
		return fmt.Errorf("dnssd: Register requires a configured TSIG signer")
	}
	fqInstance := instanceName + "." + serviceType

	b := dnswire.NewUpdate(nextUpdateID()).
		Zone(zone).
		Absent(fqInstance).
		Update(dnswire.RR{
			Name: serviceType, Type: dnswire.TypePTR, Class: dnswire.ClassIN, TTL: 120,
			RDATA: dnswire.NameRDATA{RRType: dnswire.TypePTR, Name: fqInstance},
		}).
		Update(dnswire.RR{
			Name: fqInstance, Type: dnswire.TypeSRV, Class: dnswire.ClassIN, TTL: 120,
			RDATA: dnswire.SRV{Priority: 0, Weight: 0, Port: port, Target: target},
		}).
		Update(dnswire.RR{
			Name: fqInstance, Type: dnswire.TypeTXT, Class: dnswire.ClassIN, TTL: 120,
			RDATA: dnswire.TXT{Strings: text},
		}).
		Sign(c.signer)

	msg, err := b.Build()
	if err != nil {
		return err
	}
	_, err = c.socket.Send(ctx, msg)
	return err
}

// Unregister removes a previously registered instance's PTR, SRV and TXT
// records via a signed dynamic update.
func (c *Client) Unregister(ctx context.Context, zone, serviceType, instanceName string) error {
	if c.signer == nil {
		return fmt.Errorf("dnssd: Unregister requires a configured TSIG signer")
	}
	fqInstance := instanceName + "." + serviceType

	b := dnswire.NewUpdate(nextUpdateID()).
		Zone(zone).
		Present(fqInstance).
		Update(dnswire.RR{Name: serviceType, Type: dnswire.TypePTR, Class: dnswire.ClassNONE,
			RDATA: dnswire.NameRDATA{RRType: dnswire.TypePTR, Name: fqInstance}}).
		Update(dnswire.RR{Name: fqInstance, Type: dnswire.TypeSRV, Class: dnswire.ClassANY, RDATA: dnswire.ANYData{}}).
		Update(dnswire.RR{Name: fqInstance, Type: dnswire.TypeTXT, Class: dnswire.ClassANY, RDATA: dnswire.ANYData{}}).
		Sign(c.signer)

	msg, err := b.Build()
	if err != nil {
		return err
	}
	_, err = c.socket.Send(ctx, msg)
	return err
}

var updateIDCounter uint32

// nextUpdateID hands out a transaction ID distinct from the resolver
// package's own query-ID sequence; collisions are harmless since IDs are
// only required to be unique per-socket among currently outstanding
// requests, not globally.
func nextUpdateID() uint16 {
	n := atomic.AddUint32(&updateIDCounter, 1)
	return uint16(n%65535) + 1
}
