// Package main is the entry point for the virtualkemper CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/james-see/virtualkemper/pkg/api"
	"github.com/james-see/virtualkemper/pkg/config"
	"github.com/james-see/virtualkemper/pkg/kemper"
	"github.com/james-see/virtualkemper/pkg/kemper/devices"
	"github.com/james-see/virtualkemper/pkg/metrics"
	"github.com/james-see/virtualkemper/pkg/runner"
	"github.com/james-see/virtualkemper/pkg/trace"
	"github.com/james-see/virtualkemper/pkg/tui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile string
	deviceName string
	configFile string
	serverPort int
	tick       time.Duration
	gap        time.Duration
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virtualkemper",
	Short: "Emulate the bidirectional MIDI protocol of a Kemper Profiler",
	Long: `virtualkemper is a virtual Kemper device. It answers the bidirectional
SysEx protocol like the real hardware: handshakes, keep-alives, parameter
requests and pushes of the active parameter set.

Use it to develop and test MIDI controllers without the hardware.

Examples:
  virtualkemper serve --port 8080
  virtualkemper tui -d player
  virtualkemper send "F0 00 20 33 00 7F 7E 00 40 01 01 05 F7"
  virtualkemper replay session.mid -o answers.syx
  virtualkemper params -c rig.yaml`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device behind the API server",
	RunE:  runServe,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the device with an interactive terminal monitor",
	RunE:  runTUI,
}

var sendCmd = &cobra.Command{
	Use:   "send <hex>...",
	Short: "Send messages to a fresh device and print its answers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var replayCmd = &cobra.Command{
	Use:   "replay <input.mid|input.syx>",
	Short: "Replay a recorded controller session against the device",
	Long: `Replays the controller messages of a .mid or .syx file at their recorded
times on a simulated clock and prints how the device handled each one.
With -o, the messages the device sent are written to a .mid or .syx file.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List built-in devices",
	RunE:  runDevices,
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List the parameters of the device",
	RunE:  runParams,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "profiler", "Built-in device ("+strings.Join(devices.IDs(), ", ")+")")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Device definition file (.yaml, .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Development logging")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")
	serveCmd.Flags().DurationVar(&tick, "tick", runner.DefaultTick, "Host loop interval")

	// tui command
	tuiCmd.Flags().DurationVar(&tick, "tick", runner.DefaultTick, "Host loop interval")

	// replay command
	replayCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write sent messages to a .mid or .syx file")
	replayCmd.Flags().DurationVar(&gap, "gap", 10*time.Millisecond, "Spacing of messages read from .syx files")

	// Add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(paramsCmd)
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func getDevice(opts ...kemper.Option) (*kemper.Device, error) {
	return config.OpenDevice(configFile, deviceName, opts...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	sink := metrics.NewSink(prometheus.NewRegistry(), nil)
	d, err := getDevice(kemper.WithLogger(logger), kemper.WithSink(sink))
	if err != nil {
		return err
	}
	r := runner.New(d, runner.WithTick(tick), runner.WithObserver(sink.ObserveProtocol))

	ctx, cancel := signalContext()
	defer cancel()
	go r.Run(ctx)

	fmt.Printf("Starting API server on port %d...\n", serverPort)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", serverPort)
	return api.StartServer(ctx, serverPort, r, api.WithMetrics(sink.Handler()), api.WithLogger(logger))
}

func runTUI(cmd *cobra.Command, args []string) error {
	// the terminal belongs to the UI; only log problems
	logger := zap.NewNop()
	if verbose {
		var err error
		if logger, err = newLogger(); err != nil {
			return err
		}
	}

	d, err := getDevice(kemper.WithLogger(logger))
	if err != nil {
		return err
	}
	r := runner.New(d, runner.WithTick(tick))

	ctx, cancel := signalContext()
	defer cancel()
	go r.Run(ctx)

	return tui.Run(ctx, r)
}

func runSend(cmd *cobra.Command, args []string) error {
	d, err := getDevice()
	if err != nil {
		return err
	}
	r := runner.New(d)

	for _, arg := range args {
		msg, err := trace.ParseHex(arg)
		if err != nil {
			return err
		}
		ev, ok, sent, err := r.Inject(msg)
		if err != nil {
			return fmt.Errorf("%s: %w", trace.FormatHex(msg), err)
		}
		if ok {
			fmt.Printf("-> %s  [%s]\n", trace.FormatHex(msg), ev)
		} else {
			fmt.Printf("-> %s  (unmatched)\n", trace.FormatHex(msg))
		}
		for _, m := range sent {
			fmt.Printf("<- %s  [%s]\n", trace.FormatHex(m.Data), m.Label)
		}
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	input := args[0]

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	entries, err := trace.ReadFile(input, gap)
	if err != nil {
		return err
	}

	clock := kemper.NewManualClock(time.Unix(0, 0))
	rec := trace.NewRecorder(clock)
	d, err := getDevice(kemper.WithClock(clock), kemper.WithLogger(logger), kemper.WithSink(rec))
	if err != nil {
		return err
	}

	results, err := trace.Replay(d, clock, entries, trace.DefaultPoll)
	if err != nil {
		return err
	}

	matched := 0
	for _, res := range results {
		status := "unmatched"
		if res.Matched {
			status = res.Event.String()
			matched++
		}
		fmt.Printf("%10s  %-40s %s\n", res.Entry.At, trace.FormatHex(res.Entry.Data), status)
	}
	fmt.Printf("Replayed %d messages, %d matched, %d sent\n", len(results), matched, len(rec.Entries(trace.Out)))

	if outputFile != "" {
		if err := rec.WriteFile(outputFile, trace.Out); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", outputFile)
	}
	return nil
}

func runDevices(cmd *cobra.Command, args []string) error {
	for _, p := range devices.All() {
		fmt.Printf("%-10s 0x%02X  %s\n", p.ID(), p.ProductType(), p.Name())
	}
	return nil
}

func runParams(cmd *cobra.Command, args []string) error {
	d, err := getDevice()
	if err != nil {
		return err
	}
	for _, p := range d.Parameters() {
		key := "-"
		if k := p.Key(); k != nil {
			key = k.ID()
		}
		fmt.Printf("%-12s %-24s %-8s %-20s %v\n", key, p.Name(), p.ValueType(), p.Value(), p.ParameterSets())
	}
	return nil
}
