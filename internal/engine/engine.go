package engine

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/vulnverified/probe/internal/netspec"
)

// Config holds the runtime configuration for a probe run.
type Config struct {
	Target         string
	Hosts          netspec.HostRange
	Ports          []uint16
	Timeout        time.Duration
	Concurrency    int
	ResolveNames   bool
	IncludeOffline bool
	IncludePortMap bool
}

// Stages holds the injectable stage implementations.
type Stages struct {
	Scanner  PortScanner
	Resolver HostnameResolver
}

const totalStages = 2

// Run executes the scan and reverse-DNS annotation stages and builds the
// final report. Parse errors never reach this point: Config carries already
// validated inputs, so Run itself cannot fail — an interrupted scan is
// reported as a warning on a partial result.
func Run(ctx context.Context, cfg Config, stages Stages, progress ProgressReporter) *ScanResult {
	result := &ScanResult{
		Target:    cfg.Target,
		Ports:     cfg.Ports,
		StartedAt: time.Now(),
	}

	hostCount := cfg.Hosts.Count()
	totalProbes := hostCount * uint64(len(cfg.Ports))

	// Stage 1: probe the host x port product.
	progress.Stage(1, totalStages, fmt.Sprintf("Probing %d ports across %d hosts...", len(cfg.Ports), hostCount))
	progress.StartBar(int64(totalProbes))
	summary, err := stages.Scanner.Scan(ctx, cfg.Hosts, cfg.Ports, cfg.Concurrency, cfg.Timeout)
	progress.FinishBar()
	if err != nil {
		msg := fmt.Sprintf("scan interrupted, results are partial: %s", err)
		progress.Warn(msg)
		result.Warnings = append(result.Warnings, msg)
	}

	responsive := responsiveAddrs(summary)
	progress.Detail(fmt.Sprintf("%d of %d hosts answered at least one probe", len(responsive), hostCount))

	// Stage 2: reverse-DNS annotation, best effort. Absence of a name never
	// alters scan outcomes.
	var names map[netip.Addr]string
	if cfg.ResolveNames && stages.Resolver != nil && len(responsive) > 0 {
		progress.Stage(2, totalStages, fmt.Sprintf("Resolving hostnames for %d hosts...", len(responsive)))
		names = stages.Resolver.Resolve(ctx, responsive, cfg.Concurrency)
		progress.Detail(fmt.Sprintf("%d hostnames resolved", len(names)))
	}

	result.Hosts = buildReports(summary, names, cfg)
	result.CompletedAt = time.Now()
	result.DurationSecs = result.CompletedAt.Sub(result.StartedAt).Seconds()
	result.Totals = buildTotals(result, hostCount)

	return result
}

func responsiveAddrs(summary Summary) []netip.Addr {
	var addrs []netip.Addr
	for addr, h := range summary {
		if h.Responsive() {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
	return addrs
}

// buildReports converts the raw summary into per-host reports sorted by
// address. Hosts where every probe timed out are treated as offline and
// elided unless the run asked for them.
func buildReports(summary Summary, names map[netip.Addr]string, cfg Config) []HostReport {
	hosts := make([]*HostResult, 0, len(summary))
	for _, h := range summary {
		if !h.Responsive() && !cfg.IncludeOffline {
			continue
		}
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Addr.Compare(hosts[j].Addr) < 0 })

	reports := make([]HostReport, 0, len(hosts))
	for _, h := range hosts {
		report := HostReport{
			Addr:     h.Addr.String(),
			Hostname: names[h.Addr],
			Counts:   h.Tally(),
			Open:     h.OpenPorts(),
		}
		if cfg.IncludePortMap {
			report.Outcomes = h.Ports
		}
		reports = append(reports, report)
	}
	return reports
}

func buildTotals(result *ScanResult, hostCount uint64) Totals {
	totals := Totals{HostsProbed: hostCount}
	for _, h := range result.Hosts {
		if h.Counts.Open+h.Counts.Closed > 0 {
			totals.HostsResponsive++
		}
		if h.Counts.Open > 0 {
			totals.HostsWithOpen++
		}
		totals.OpenPorts += h.Counts.Open
	}
	return totals
}
