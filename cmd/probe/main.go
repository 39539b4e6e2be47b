package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vulnverified/probe/internal/engine"
	"github.com/vulnverified/probe/internal/netspec"
	"github.com/vulnverified/probe/internal/output"
	"github.com/vulnverified/probe/internal/scan"
	"github.com/vulnverified/probe/pkg/ports"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	output.Version = version

	var (
		jsonOutput  bool
		timeout     time.Duration
		concurrency int
		noColor     bool
		silent      bool
		verbose     bool
		showAll     bool
		noRDNS      bool
	)

	rootCmd := &cobra.Command{
		Use:   "probe <host|cidr> [ports]",
		Short: "TCP connectivity probe for hosts and CIDR blocks",
		Long: "Probes every host in an IPv4 address or CIDR block for TCP connectivity\n" +
			"on the given ports (e.g. \"22,80,110-120\", \"-\" for all) and reports\n" +
			"per-host open/closed/timeout results.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Respect NO_COLOR env var.
			if _, ok := os.LookupEnv("NO_COLOR"); ok {
				noColor = true
			}
			if noColor {
				color.NoColor = true
			}

			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be positive")
			}

			// Validate the full specification before any network activity.
			hostSpec := strings.TrimSpace(args[0])
			hosts, err := netspec.ParseHostSpec(hostSpec)
			if err != nil {
				return fmt.Errorf("invalid host specification: %w", err)
			}

			scanPorts := ports.Top100
			if len(args) == 2 {
				scanPorts, err = netspec.ParsePortList(strings.TrimSpace(args[1]))
				if err != nil {
					return fmt.Errorf("invalid port specification: %w", err)
				}
			}

			// Set up context with signal handling for clean Ctrl+C.
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
				cancel()
			}()

			showProgress := !jsonOutput && !silent
			progress := output.NewProgress(os.Stderr, verbose, !showProgress)

			cfg := engine.Config{
				Target:         hostSpec,
				Hosts:          hosts,
				Ports:          scanPorts,
				Timeout:        timeout,
				Concurrency:    concurrency,
				ResolveNames:   !noRDNS,
				IncludeOffline: showAll,
				IncludePortMap: jsonOutput,
			}
			stages := engine.Stages{
				Scanner:  &scan.Scanner{Progress: progress},
				Resolver: &scan.Resolver{},
			}

			if showProgress {
				output.WriteHeader(os.Stderr)
			}

			result := engine.Run(ctx, cfg, stages, progress)

			if showProgress {
				progress.Complete()
			}

			if jsonOutput {
				return output.WriteJSON(os.Stdout, result)
			}

			output.WriteTable(os.Stdout, result, noColor)
			output.WriteSummary(os.Stdout, result)
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output structured JSON to stdout")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 500*time.Millisecond, "Per-probe connection timeout")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 100, "Max concurrent connection attempts")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable terminal colors")
	rootCmd.Flags().BoolVar(&silent, "silent", false, "Results only, no progress")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose per-probe progress")
	rootCmd.Flags().BoolVar(&showAll, "all", false, "Include unresponsive hosts in the report")
	rootCmd.Flags().BoolVar(&noRDNS, "no-rdns", false, "Skip reverse-DNS hostname annotation")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("probe {{.Version}}\n")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
