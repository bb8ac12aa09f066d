// Package main is the entry point for satsend.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/satsend/business/fees"
	feesDI "github.com/fd1az/satsend/business/fees/di"
	feesDomain "github.com/fd1az/satsend/business/fees/domain"
	"github.com/fd1az/satsend/business/monitor"
	monitorDI "github.com/fd1az/satsend/business/monitor/di"
	"github.com/fd1az/satsend/business/network"
	networkDI "github.com/fd1az/satsend/business/network/di"
	"github.com/fd1az/satsend/business/send"
	sendApp "github.com/fd1az/satsend/business/send/app"
	sendDI "github.com/fd1az/satsend/business/send/di"
	sendDomain "github.com/fd1az/satsend/business/send/domain"
	"github.com/fd1az/satsend/business/send/infra/report"
	"github.com/fd1az/satsend/internal/apm"
	"github.com/fd1az/satsend/internal/asset"
	"github.com/fd1az/satsend/internal/config"
	"github.com/fd1az/satsend/internal/health"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/metrics"
	"github.com/fd1az/satsend/internal/monolith"
	"github.com/fd1az/satsend/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// sendFlags describes a one-shot send requested on the command line.
type sendFlags struct {
	from    string
	to      string
	amount  string
	tier    string
	feeRate float64
}

func (s sendFlags) requested() bool {
	return s.to != ""
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	watch := flag.String("watch", "", "Comma-separated addresses to watch")
	showVersion := flag.Bool("version", false, "Show version information")

	var sf sendFlags
	flag.StringVar(&sf.from, "from", "", "Source address for a one-shot send (CLI mode)")
	flag.StringVar(&sf.to, "to", "", "Recipient address for a one-shot send (CLI mode)")
	flag.StringVar(&sf.amount, "amount", "", "Amount to send, e.g. 15000, 15000sats or 0.00015btc")
	flag.StringVar(&sf.tier, "tier", string(feesDomain.Standard), "Fee tier: economy, standard, express or custom")
	flag.Float64Var(&sf.feeRate, "fee-rate", 0, "Fee rate in sat/vB for the custom tier")
	flag.Parse()

	if *showVersion {
		fmt.Printf("satsend %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default; a one-shot send always runs in CLI mode
	tuiMode := !*cliMode && !sf.requested()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, *watch, tuiMode, sf); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, watch string, tuiMode bool, sf sendFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode
	cfg.Monitor.Addresses = append(cfg.Monitor.Addresses, splitList(watch)...)

	// In TUI mode, suppress logs (discard output)
	var out io.Writer = os.Stderr
	if tuiMode {
		out = io.Discard
	}
	log := logger.NewWithFormat(out, logger.Format(cfg.App.LogFormat), logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	log.Info(ctx, "starting satsend",
		"version", version,
		"environment", cfg.App.Environment,
		"network", cfg.Network.Name,
	)

	// Initialize observability if enabled
	traceProvider := apm.NewEmptyTraceProvider()
	if cfg.Telemetry.Enabled {
		stop, err := setupTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stop()

		headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
		if err != nil {
			return fmt.Errorf("invalid telemetry.otlp_headers: %w", err)
		}
		traceProvider, err = apm.NewTraceProvider(ctx, apm.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    apm.Exporter(cfg.Telemetry.Exporter),
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     headers,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
	}
	defer traceProvider.Stop()

	// Create monolith (application container)
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	healthServer := health.NewServer(cfg.Telemetry.HealthPort, version, mono.Resilient(), log)
	healthServer.RegisterCheck("limiter_stats", mono.CheckStats)
	healthServer.SetStats(mono.Stats())
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Telemetry.HealthPort)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		healthServer.Stop(stopCtx)
	}()

	monitorModule := &monitor.Module{}
	modules := []namedModule{
		{"network", &network.Module{}},
		{"fees", &fees.Module{}},
		{"send", &send.Module{}},
		{"monitor", monitorModule},
	}

	// Register all module services
	for _, m := range modules {
		if err := mono.RegisterModules(m.module); err != nil {
			return fmt.Errorf("failed to register %s module: %w", m.name, err)
		}
	}
	defer monitorModule.Shutdown(mono)

	source := &dashboardSource{
		gateway:   networkDI.GetGateway(mono.Services()),
		resilient: mono.Resilient(),
		fees:      feesDI.GetFeeService(mono.Services()),
		monitor:   monitorDI.GetMonitor(mono.Services()),
		pipeline:  sendDI.GetPipeline(mono.Services()),
		logger:    log,
	}

	if tuiMode {
		return runTUI(ctx, source, func() error {
			ui.Send(ui.StartupMsg{Step: "config", Status: "done"})
			return startModules(ctx, mono, modules, true)
		})
	}

	if err := startModules(ctx, mono, modules, false); err != nil {
		return err
	}

	if sf.requested() {
		return runSend(ctx, source.pipeline, sf)
	}
	return runCLI(ctx, log)
}

type namedModule struct {
	name   string
	module monolith.Module
}

type starter interface {
	StartModules(ctx context.Context, modules ...monolith.Module) error
}

// startModules starts modules in order, reporting progress to the TUI.
func startModules(ctx context.Context, mono starter, modules []namedModule, report bool) error {
	for _, m := range modules {
		if report {
			ui.Send(ui.StartupMsg{Step: m.name, Status: "connecting"})
		}
		if err := mono.StartModules(ctx, m.module); err != nil {
			if report {
				ui.Send(ui.StartupMsg{Step: m.name, Status: "failed", Message: err.Error()})
			}
			return fmt.Errorf("failed to start %s module: %w", m.name, err)
		}
		if report {
			ui.Send(ui.StartupMsg{Step: m.name, Status: "done"})
		}
	}
	return nil
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.NewPrometheusConfig()),
	}
	if cfg.Telemetry.Exporter == string(apm.ExporterOTLPGRPC) && cfg.Telemetry.OTLPEndpoint != "" {
		headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
		if err != nil {
			return nil, fmt.Errorf("invalid telemetry.otlp_headers: %w", err)
		}
		opts = append(opts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.Telemetry.OTLPEndpoint, headers,
				strings.HasPrefix(cfg.Telemetry.OTLPEndpoint, "http://"))))
	}

	provider, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics: %w", err)
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	server := metrics.NewServer(log, metrics.WithPort(strconv.Itoa(port)))
	server.Start()

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(stopCtx)
		provider.Shutdown(stopCtx)
	}, nil
}

func runCLI(ctx context.Context, log *logger.Logger) error {
	log.Info(ctx, "all modules started, monitoring")

	// Wait for shutdown
	<-ctx.Done()

	log.Info(ctx, "shutting down")
	return nil
}

func runSend(ctx context.Context, pipeline *sendApp.Pipeline, sf sendFlags) error {
	amount, err := asset.Parse(sf.amount)
	if err != nil {
		return fmt.Errorf("invalid -amount: %w", err)
	}
	tier, err := feesDomain.ParseTierID(sf.tier)
	if err != nil {
		return fmt.Errorf("invalid -tier: %w", err)
	}

	reporter := report.NewConsoleReporter(os.Stdout)
	events, stop := pipeline.Subscribe()
	defer stop()
	go reporter.Follow(events)

	draft, err := pipeline.Prepare(ctx, sendDomain.SendRequest{
		SourceAddress: sf.from,
		Recipient:     sf.to,
		AmountSats:    amount.Sats(),
		FeeTier:       tier,
		CustomFeeRate: sf.feeRate,
	})
	if err != nil {
		reporter.Failure(err)
		return err
	}
	reporter.Prepared(draft)

	result, err := pipeline.Confirm(ctx)
	if err != nil {
		reporter.Failure(err)
		return err
	}
	reporter.Receipt(result)
	return nil
}

func runTUI(ctx context.Context, source *dashboardSource, startFunc func() error) error {
	// Channel to receive the welcome-complete signal
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Create and start the TUI program IMMEDIATELY (shows welcome screen)
	p := tea.NewProgram(ui.New(source), tea.WithAltScreen(), tea.WithContext(ctx))
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		if err := startFunc(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}
		source.forwardEvents(ctx)
		errCh <- nil
	}()

	// Run TUI (blocking) - shows immediately with welcome screen
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
