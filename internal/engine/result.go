// Package engine orchestrates the probe scan pipeline.
package engine

import (
	"context"
	"net/netip"
	"slices"
	"time"

	"github.com/vulnverified/probe/internal/netspec"
)

// Outcome classifies a single TCP connect attempt.
type Outcome uint8

const (
	// Timeout means no definitive answer arrived within the timeout: the
	// SYN was lost, filtered, or the host is down. It is the zero value so
	// an unset outcome never reads as an answer.
	Timeout Outcome = iota
	// Closed means the attempt was refused or failed before the timeout.
	// Both Closed and Open mean the host answered at the TCP or ICMP level.
	Closed
	// Open means the three-way handshake completed within the timeout.
	Open
)

func (o Outcome) String() string {
	switch o {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// MarshalText renders the outcome name for JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// HostResult maps each probed port on one host to its outcome. If the port
// list carries duplicates, the later probe's outcome wins under the same key.
type HostResult struct {
	Addr  netip.Addr
	Ports map[uint16]Outcome
}

// Tally holds per-host outcome counts.
type Tally struct {
	Open    int `json:"open"`
	Closed  int `json:"closed"`
	Timeout int `json:"timeout"`
}

// Tally reduces the per-port outcomes to counts.
func (h *HostResult) Tally() Tally {
	var t Tally
	for _, outcome := range h.Ports {
		switch outcome {
		case Open:
			t.Open++
		case Closed:
			t.Closed++
		case Timeout:
			t.Timeout++
		}
	}
	return t
}

// OpenPorts returns the host's open ports sorted ascending.
func (h *HostResult) OpenPorts() []uint16 {
	var open []uint16
	for port, outcome := range h.Ports {
		if outcome == Open {
			open = append(open, port)
		}
	}
	slices.Sort(open)
	return open
}

// Responsive reports whether the host produced at least one TCP-level answer.
// A host where every probe timed out is indistinguishable from an offline one.
func (h *HostResult) Responsive() bool {
	t := h.Tally()
	return t.Open+t.Closed > 0
}

// Summary accumulates per-host results for a whole run, keyed by address.
// It has a single writer (the scan collector) and is read only after the
// scan's completion contract is satisfied.
type Summary map[netip.Addr]*HostResult

// Record merges one probe completion into the summary.
func (s Summary) Record(addr netip.Addr, port uint16, outcome Outcome) {
	h, ok := s[addr]
	if !ok {
		h = &HostResult{Addr: addr, Ports: make(map[uint16]Outcome)}
		s[addr] = h
	}
	h.Ports[port] = outcome
}

// ScanResult is the top-level output of a probe run.
type ScanResult struct {
	Target       string       `json:"target"`
	Ports        []uint16     `json:"ports"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at"`
	DurationSecs float64      `json:"duration_secs"`
	Hosts        []HostReport `json:"hosts"`
	Totals       Totals       `json:"totals"`
	Warnings     []string     `json:"warnings,omitempty"`
}

// HostReport is one host's aggregated outcome for presentation.
type HostReport struct {
	Addr     string             `json:"addr"`
	Hostname string             `json:"hostname,omitempty"`
	Counts   Tally              `json:"counts"`
	Open     []uint16           `json:"open_ports,omitempty"`
	Outcomes map[uint16]Outcome `json:"outcomes,omitempty"`
}

// Totals provides aggregate counts for the scan.
type Totals struct {
	HostsProbed     uint64 `json:"hosts_probed"`
	HostsResponsive int    `json:"hosts_responsive"`
	HostsWithOpen   int    `json:"hosts_with_open_ports"`
	OpenPorts       int    `json:"open_ports"`
}

// PortScanner probes the full host x port product under a concurrency cap.
// Implementations return only after every dispatched target has produced
// exactly one outcome; a non-nil error means the run was cut short and the
// summary is partial.
type PortScanner interface {
	Scan(ctx context.Context, hosts netspec.HostRange, ports []uint16, concurrency int, timeout time.Duration) (Summary, error)
}

// HostnameResolver annotates addresses with reverse-DNS names, best effort.
// Failed lookups are simply absent from the returned map.
type HostnameResolver interface {
	Resolve(ctx context.Context, addrs []netip.Addr, concurrency int) map[netip.Addr]string
}

// ProgressReporter is called by the engine and scanner to report progress.
type ProgressReporter interface {
	Stage(num, total int, msg string)
	Detail(msg string)
	Warn(msg string)
	StartBar(total int64)
	Advance(n int64)
	FinishBar()
}
