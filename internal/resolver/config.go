package resolver

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/arrowhead-go/core-dns/internal/dnssig"
)

// defaultPort, defaultKeepOpenMS and defaultTimeoutMS mirror the source
// resolver's out-of-the-box behaviour (spec §4.F Config).
const (
	defaultPort       = 53
	defaultKeepOpenMS = 3000
	defaultTimeoutMS  = 10000
)

// Config configures a Socket. Address must be a numeric IPv4 or IPv6
// literal; resolving a hostname is the caller's job (this package only
// speaks to a server it has already located), matching the source's
// refusal to resolve hostnames itself.
type Config struct {
	// Address is the server's IP literal. Required.
	Address string
	// Port is the server's UDP/TCP port. Defaults to 53.
	Port uint16
	// KeepOpenMS is how long an idle transport stays open after its
	// queues drain before it is closed. Defaults to 3000.
	KeepOpenMS int
	// TimeoutMS is the per-task response deadline, and the idle-timeout
	// threshold for an open TCP connection. Defaults to 10000.
	TimeoutMS int
	// OnIgnoredError, if set, is invoked for failures that do not belong
	// to any in-flight task: an unmatched response ID, or a transport
	// error raised while no task was waiting on it.
	OnIgnoredError func(err error)
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Signer, if set, verifies the TSIG RR trailing any response that
	// carries one. A response with no TSIG RR is delivered unverified;
	// one with a TSIG RR that fails verification is rejected with
	// KindTSIGBadSig/KindTSIGBadKey/KindTSIGBadTime instead of being
	// handed to the caller.
	Signer *dnssig.Signer
}

// normalize validates required fields and fills in defaults, returning a
// copy safe to store on the Socket.
func (c Config) normalize() (Config, error) {
	if c.Address == "" {
		return Config{}, newError(KindOther, fmt.Errorf("resolver: Config.Address is required"))
	}
	if net.ParseIP(c.Address) == nil {
		return Config{}, newError(KindOther, fmt.Errorf("resolver: Config.Address %q is not an IP literal", c.Address))
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.KeepOpenMS <= 0 {
		c.KeepOpenMS = defaultKeepOpenMS
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = defaultTimeoutMS
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

func (c Config) isIPv6() bool {
	ip := net.ParseIP(c.Address)
	return ip != nil && ip.To4() == nil
}

func (c Config) serverAddrString() string {
	return net.JoinHostPort(c.Address, fmt.Sprintf("%d", c.Port))
}
