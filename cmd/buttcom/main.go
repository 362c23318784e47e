// cmd/buttcom/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"buttcom/internal/config"
	"buttcom/internal/discovery"
	"buttcom/internal/model"
	"buttcom/internal/operator"
	"buttcom/internal/procedure"
	"buttcom/internal/protocol/serial"
	"buttcom/internal/session"
	"buttcom/internal/utils"
)

// Application represents one buttcom invocation
type Application struct {
	config *config.Config
	logger *zap.Logger
	flags  *pflag.FlagSet

	registry *procedure.Registry
	runner   *procedure.Runner
	scanner  *discovery.Scanner
	terminal *operator.Terminal
}

func main() {
	flags := pflag.NewFlagSet("buttcom", pflag.ContinueOnError)
	config.BindFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "buttcom: %v\n", err)
		os.Exit(2)
	}

	app, err := NewApplication(flags, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = app.Run(ctx, os.Stdout)
	stop()

	app.shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "buttcom: %v\n", err)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(flags *pflag.FlagSet, in io.Reader, out io.Writer) (*Application, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config:   cfg,
		logger:   logger.With(zap.String("app", cfg.App.Name)),
		flags:    flags,
		terminal: operator.NewTerminal(in, out),
	}

	if err := app.initializeScanner(); err != nil {
		return nil, fmt.Errorf("failed to initialize scanner: %w", err)
	}

	app.initializeProcedures()

	app.logger.Debug("Application initialized",
		zap.String("version", cfg.App.Version),
		zap.String("procedure", cfg.Session.Procedure),
	)
	return app, nil
}

// initializeScanner sets up port discovery
func (app *Application) initializeScanner() error {
	scanner, err := discovery.NewScanner(app.config.Serial.PortPatterns, app.logger)
	if err != nil {
		return err
	}
	app.scanner = scanner
	return nil
}

// initializeProcedures sets up the procedure registry and runner
func (app *Application) initializeProcedures() {
	app.registry = procedure.NewRegistry(app.logger)
	procedure.RegisterDefaultProcedures(app.registry)

	sessionCfg := session.Config{
		Delays: session.Delays{
			CommandDelay: app.config.Pacing.CommandDelay,
			CharDelay:    app.config.Pacing.CharDelay,
			SettleDelay:  app.config.Pacing.SettleDelay,
		},
		DrainOnClear: app.config.Session.DrainOnClear,
	}

	app.runner = procedure.NewRunner(app.registry, sessionCfg, app.logger,
		session.WithOperator(app.terminal),
	)
}

// Run lists ports or runs the configured procedure
func (app *Application) Run(ctx context.Context, out io.Writer) error {
	if listPorts, _ := app.flags.GetBool("list-ports"); listPorts {
		return app.listPorts(ctx, out)
	}
	return app.runProcedure(ctx, out)
}

func (app *Application) listPorts(ctx context.Context, out io.Writer) error {
	ports, err := app.scanner.Scan(ctx)
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, port := range ports {
		fmt.Fprintln(out, port.String())
	}
	return nil
}

func (app *Application) runProcedure(ctx context.Context, out io.Writer) error {
	if err := app.config.RequirePort(); err != nil {
		return err
	}

	p, err := model.ParseProcedure(app.config.Session.Procedure)
	if err != nil {
		return err
	}

	conn, err := serial.NewConnection(serial.DefaultConfig(app.config.Serial.Port), app.logger)
	if err != nil {
		return fmt.Errorf("failed to create serial connection: %w", err)
	}

	transcript, err := app.runner.Run(ctx, conn, p)
	if transcript != nil {
		fmt.Fprintf(out, "%s on %s: %d exchange(s)\n", transcript.Procedure, transcript.Port, len(transcript.Exchanges))
	}
	if err != nil {
		utils.LogError(app.logger, "Procedure aborted", err, zap.String("procedure", string(p)))
		return err
	}
	return nil
}

// shutdown flushes the logger
func (app *Application) shutdown() {
	if err := utils.CloseLogger(app.logger); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}
