// Package resolver resolves a logical domain name into a short list of
// backend targets for the topology-neutral ReplicatedClient variant,
// which delegates target selection to an external name resolver instead
// of owning a cluster view.
package resolver

import (
	"context"
	"net"
)

// Resolver maps a logical domain name to a list of dial targets
// (host:port strings).
type Resolver interface {
	Targets(ctx context.Context, domain string) ([]string, error)
}

// DNSResolver resolves targets via the standard library's host resolver.
// This package is purely a client of name resolution, not a DNS protocol
// implementation or server, so it reuses net.DefaultResolver rather than
// a full DNS library (see DESIGN.md).
type DNSResolver struct {
	Resolver *net.Resolver
	Port     string
}

// NewDNSResolver creates a DNSResolver that appends port to every
// resolved address.
func NewDNSResolver(port string) *DNSResolver {
	return &DNSResolver{Resolver: net.DefaultResolver, Port: port}
}

// Targets resolves domain to a list of host:port targets. If resolution
// yields only one address, it is duplicated so the replicated client's
// single-replica-retry-twice rule still has two list entries to walk.
func (d *DNSResolver) Targets(ctx context.Context, domain string) ([]string, error) {
	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}

	hosts, err := r.LookupHost(ctx, domain)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, &net.DNSError{Err: "no addresses found", Name: domain}
	}

	targets := make([]string, len(hosts))
	for i, h := range hosts {
		targets[i] = net.JoinHostPort(h, d.Port)
	}
	if len(targets) == 1 {
		targets = append(targets, targets[0])
	}
	return targets, nil
}

// StaticResolver returns a fixed target list, useful for tests and for
// deployments that already know their targets without DNS.
type StaticResolver struct {
	TargetList []string
}

func (s StaticResolver) Targets(ctx context.Context, domain string) ([]string, error) {
	out := append([]string{}, s.TargetList...)
	if len(out) == 1 {
		out = append(out, out[0])
	}
	return out, nil
}
