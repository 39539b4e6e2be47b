package scan

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vulnverified/probe/internal/engine"
	"github.com/vulnverified/probe/internal/netspec"
)

func TestScan_MixedOutcomes(t *testing.T) {
	ln, openPortNum := startListener(t)
	defer ln.Close()
	closedPortNum := closedPort(t)

	hosts, err := netspec.ParseHostSpec("127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := &Scanner{}
	summary, err := s.Scan(context.Background(), hosts, []uint16{openPortNum, closedPortNum}, 5, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summary) != 1 {
		t.Fatalf("got %d hosts, want 1", len(summary))
	}
	h := summary[loopback]
	if h == nil {
		t.Fatal("no result for 127.0.0.1")
	}
	if len(h.Ports) != 2 {
		t.Fatalf("got %d port outcomes, want 2", len(h.Ports))
	}
	if got := h.Ports[openPortNum]; got != engine.Open {
		t.Errorf("outcome for listening port = %v, want open", got)
	}
	if got := h.Ports[closedPortNum]; got != engine.Closed {
		t.Errorf("outcome for closed port = %v, want closed", got)
	}
}

func TestScan_ProducesOneOutcomePerTarget(t *testing.T) {
	closedPortNum := closedPort(t)

	// 127.0.0.0/29 spans 8 loopback addresses; every probe should complete.
	hosts, err := netspec.ParseHostSpec("127.0.0.1/29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ports := []uint16{closedPortNum}
	s := &Scanner{}
	summary, err := s.Scan(context.Background(), hosts, ports, 3, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summary) != 8 {
		t.Fatalf("got %d hosts, want 8", len(summary))
	}
	total := 0
	for _, h := range summary {
		total += len(h.Ports)
	}
	if total != 8 {
		t.Errorf("got %d outcomes, want 8 (one per host x port)", total)
	}
}

func TestScan_DuplicatePortsCollapseUnderOneKey(t *testing.T) {
	ln, openPortNum := startListener(t)
	defer ln.Close()

	hosts, _ := netspec.ParseHostSpec("127.0.0.1")
	s := &Scanner{}
	summary, err := s.Scan(context.Background(), hosts, []uint16{openPortNum, openPortNum}, 5, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := summary[loopback]
	if len(h.Ports) != 1 {
		t.Errorf("got %d port entries for duplicated port, want 1", len(h.Ports))
	}
	if h.Ports[openPortNum] != engine.Open {
		t.Errorf("outcome = %v, want open", h.Ports[openPortNum])
	}
}

func TestScan_ConcurrencyOfOneStillCompletes(t *testing.T) {
	closedPortNum := closedPort(t)

	hosts, _ := netspec.ParseHostSpec("127.0.0.1/30")
	s := &Scanner{}
	summary, err := s.Scan(context.Background(), hosts, []uint16{closedPortNum}, 1, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary) != 4 {
		t.Errorf("got %d hosts, want 4", len(summary))
	}
}

func TestScan_NeverExceedsConcurrencyLimit(t *testing.T) {
	const limit = 4

	var inflight, peak atomic.Int64
	s := &Scanner{
		probe: func(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) engine.Outcome {
			cur := inflight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			// Hold the slot long enough for the pool to saturate.
			time.Sleep(2 * time.Millisecond)
			inflight.Add(-1)
			return engine.Closed
		},
	}

	// 16 hosts x 2 ports = 32 targets through 4 workers.
	hosts, err := netspec.ParseHostSpec("10.0.0.0/28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := s.Scan(context.Background(), hosts, []uint16{80, 443}, limit, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := 0
	for _, h := range summary {
		total += len(h.Ports)
	}
	if total != 32 {
		t.Errorf("got %d outcomes, want 32", total)
	}
	if got := peak.Load(); got > limit {
		t.Errorf("peak in-flight probes = %d, want at most %d", got, limit)
	}
}

func TestScan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hosts, _ := netspec.ParseHostSpec("127.0.0.1/28")
	s := &Scanner{}
	summary, err := s.Scan(ctx, hosts, []uint16{80, 443}, 5, 2*time.Second)
	if err == nil {
		t.Fatal("expected ctx error for cancelled scan")
	}
	// Partial (likely empty) summary is still returned, never nil.
	if summary == nil {
		t.Error("summary should not be nil")
	}
}

// countingProgress records Advance calls.
type countingProgress struct {
	mu    sync.Mutex
	count int64
}

func (p *countingProgress) Stage(num, total int, msg string) {}
func (p *countingProgress) Detail(msg string)                {}
func (p *countingProgress) Warn(msg string)                  {}
func (p *countingProgress) StartBar(total int64)             {}
func (p *countingProgress) FinishBar()                       {}
func (p *countingProgress) Advance(n int64) {
	p.mu.Lock()
	p.count += n
	p.mu.Unlock()
}

func TestScan_ReportsProgressPerProbe(t *testing.T) {
	closedPortNum := closedPort(t)

	hosts, _ := netspec.ParseHostSpec("127.0.0.1/30")
	progress := &countingProgress{}
	s := &Scanner{Progress: progress}
	if _, err := s.Scan(context.Background(), hosts, []uint16{closedPortNum}, 4, 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if progress.count != 4 {
		t.Errorf("progress advanced %d times, want 4", progress.count)
	}
}
