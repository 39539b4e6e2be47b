package scan

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

const rdnsTimeout = 2 * time.Second

// Resolver performs reverse-DNS (PTR) lookups against the system resolver.
// Lookups are best effort: failed or empty answers simply produce no
// annotation and never affect scan outcomes.
type Resolver struct {
	// Server overrides the resolver address as "host:port", mainly for tests.
	Server string
	// Timeout bounds each query; defaults to 2s.
	Timeout time.Duration
}

// Resolve looks up PTR records for addrs with bounded parallelism and returns
// the names that resolved.
func (r *Resolver) Resolve(ctx context.Context, addrs []netip.Addr, concurrency int) map[netip.Addr]string {
	server := r.Server
	if server == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(conf.Servers) == 0 {
			return nil
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = rdnsTimeout
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	names := make(map[netip.Addr]string, len(addrs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			name, ok := lookupPTR(ctx, server, addr, timeout)
			if !ok {
				return nil
			}
			mu.Lock()
			names[addr] = name
			mu.Unlock()
			return nil
		})
	}
	// Lookups never return errors; Wait only blocks for completion.
	_ = g.Wait()

	return names
}

func lookupPTR(ctx context.Context, server string, addr netip.Addr, timeout time.Duration) (string, bool) {
	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", false
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	client := &dns.Client{Timeout: timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		return "", false
	}

	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), true
		}
	}
	return "", false
}
