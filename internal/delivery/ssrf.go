package delivery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Resolver resolves hostnames for SSRF validation. Satisfied by net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard validates outbound delivery destinations. HTTPS only; hostnames are
// IDNA-normalized and resolved, and every resolved address must fall outside
// loopback, link-local, private, shared and metadata ranges. Redirects are
// handled separately by the sender, which never follows them.
type Guard struct {
	resolver      Resolver
	allowInsecure bool
}

// NewGuard creates a guard using the system resolver. allowInsecure permits
// plain HTTP and private addresses for local development only.
func NewGuard(allowInsecure bool) *Guard {
	return &Guard{resolver: net.DefaultResolver, allowInsecure: allowInsecure}
}

// WithResolver replaces the DNS resolver. Test hook.
func (g *Guard) WithResolver(r Resolver) *Guard {
	g.resolver = r
	return g
}

// sharedAddressSpace is 100.64.0.0/10 (carrier-grade NAT), which netip does
// not classify as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Validate checks a destination URL before any connection is made. A non-nil
// error wraps ErrSSRFBlocked and the delivery must not be attempted.
func (g *Guard) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable url", ErrSSRFBlocked)
	}

	if u.Scheme != "https" {
		if g.allowInsecure && u.Scheme == "http" {
			// Dev escape hatch; scheme check only, address checks still apply.
		} else {
			return fmt.Errorf("%w: scheme %q not allowed", ErrSSRFBlocked, u.Scheme)
		}
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrSSRFBlocked)
	}

	// Normalize unicode hostnames so lookalike forms cannot smuggle a
	// blocked literal past the checks.
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
	if err == nil && ascii != "" {
		host = ascii
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return g.checkAddr(addr)
	}

	if g.resolver == nil {
		return nil
	}
	ipAddrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: dns resolution failed for %q: %v", ErrSSRFBlocked, host, err)
	}
	if len(ipAddrs) == 0 {
		return fmt.Errorf("%w: host %q resolved to no addresses", ErrSSRFBlocked, host)
	}
	for _, ia := range ipAddrs {
		addr, ok := netip.AddrFromSlice(ia.IP)
		if !ok {
			return fmt.Errorf("%w: host %q resolved to invalid address", ErrSSRFBlocked, host)
		}
		if err := g.checkAddr(addr.Unmap()); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback():
		return fmt.Errorf("%w: loopback address %s", ErrSSRFBlocked, addr)
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		// Covers 169.254.0.0/16 including cloud metadata endpoints.
		return fmt.Errorf("%w: link-local address %s", ErrSSRFBlocked, addr)
	case addr.IsUnspecified():
		return fmt.Errorf("%w: unspecified address %s", ErrSSRFBlocked, addr)
	case addr.IsMulticast():
		return fmt.Errorf("%w: multicast address %s", ErrSSRFBlocked, addr)
	case sharedAddressSpace.Contains(addr):
		return fmt.Errorf("%w: shared address space %s", ErrSSRFBlocked, addr)
	case addr.IsPrivate():
		if g.allowInsecure {
			return nil
		}
		return fmt.Errorf("%w: private address %s", ErrSSRFBlocked, addr)
	}
	return nil
}
