package scan

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/vulnverified/probe/internal/engine"
	"github.com/vulnverified/probe/internal/netspec"
)

// Scanner implements engine.PortScanner with a fixed-size worker pool.
type Scanner struct {
	// Progress, when set, receives an Advance per completed probe and a
	// Detail line per open port.
	Progress engine.ProgressReporter

	// probe overrides the connect function, for tests. Defaults to Probe.
	probe func(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) engine.Outcome
}

type target struct {
	addr netip.Addr
	port uint16
}

type completion struct {
	addr    netip.Addr
	port    uint16
	outcome engine.Outcome
}

// Scan probes every (host, port) pair with at most concurrency connection
// attempts in flight, regardless of how many targets the range expands to.
// Targets are generated lazily, hosts outer and ports inner, so a large CIDR
// block is never materialized. Scan returns once every dispatched target has
// produced exactly one outcome; on context cancellation it stops dispatching
// and returns the partial summary together with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, hosts netspec.HostRange, ports []uint16, concurrency int, timeout time.Duration) (engine.Summary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	probe := s.probe
	if probe == nil {
		probe = Probe
	}

	work := make(chan target, concurrency)
	completions := make(chan completion, concurrency)

	// Producer: lazy host x port cross product.
	go func() {
		defer close(work)
		addrs := hosts.Addrs()
		for addr, ok := addrs.Next(); ok; addr, ok = addrs.Next() {
			for _, port := range ports {
				select {
				case work <- target{addr: addr, port: port}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Workers: the pool size is the concurrency ceiling. Each worker holds
	// at most one connection attempt open at a time.
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}
				completions <- completion{
					addr:    t.addr,
					port:    t.port,
					outcome: probe(ctx, t.addr, t.port, timeout),
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(completions)
	}()

	// Single collector owns the summary; workers never touch it, so
	// concurrent completions for the same host cannot race.
	summary := make(engine.Summary)
	for c := range completions {
		summary.Record(c.addr, c.port, c.outcome)
		if s.Progress != nil {
			s.Progress.Advance(1)
			if c.outcome == engine.Open {
				s.Progress.Detail("open " + netip.AddrPortFrom(c.addr, c.port).String())
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
