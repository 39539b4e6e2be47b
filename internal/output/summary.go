package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/vulnverified/probe/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	bold = color.New(color.Bold)
	warn = color.New(color.FgYellow)
)

// WriteHeader prints the probe banner.
func WriteHeader(w io.Writer) {
	bold.Fprintf(w, "probe %s", Version)
	fmt.Fprint(w, "\n\n")
}

// WriteSummary prints the post-scan totals.
func WriteSummary(w io.Writer, result *engine.ScanResult) {
	t := result.Totals

	fmt.Fprintln(w)
	bold.Fprint(w, "Target: ")
	fmt.Fprintf(w, "%s (%d hosts)\n", result.Target, t.HostsProbed)
	bold.Fprint(w, "Responsive: ")
	fmt.Fprintf(w, "%d hosts\n", t.HostsResponsive)
	bold.Fprint(w, "Open ports: ")
	fmt.Fprintf(w, "%d across %d hosts\n", t.OpenPorts, t.HostsWithOpen)
	bold.Fprint(w, "Duration: ")
	fmt.Fprintf(w, "%.1fs\n", result.DurationSecs)

	for _, msg := range result.Warnings {
		warn.Fprint(w, "! ")
		fmt.Fprintln(w, msg)
	}
}
