package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/sim"
	"github.com/fako1024/bletemp/config"
	"github.com/fako1024/bletemp/display"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bletemp",
		Short: "Plot the readings of a BLE temperature sensor",
		Long: `Connect to the first BLE peripheral whose name contains the configured
substring, subscribe to its temperature measurements and plot the most
recent readings in the terminal.

Logs are written to stderr, so redirecting it (e.g. 2>bletemp.log) keeps
the plot clean. The log level is taken from --log-level, the ` + bletemp.LogLevelEnv + `
environment variable or the configuration file, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Path to YAML configuration file")
	flags.String("backend", config.DefaultBackend(), "BLE backend (gatt, goble, tinygo, sim)")
	flags.StringP("name-match", "n", "Temperature", "Substring the sensor's local name must contain")
	flags.Duration("scan-dwell", 2*time.Second, "Time to scan before picking a sensor")
	flags.Duration("connect-timeout", 20*time.Second, "Maximum time to wait for a connection (gatt backend)")
	flags.String("decode-mode", bletemp.DecodeMillidegree.String(), "Measurement decoding (millidegree, ieee11073)")
	flags.Duration("frame-interval", display.DefaultFrameInterval, "Regular redraw interval")
	flags.Int("sample-buffer", 64, "Number of samples buffered between sensor and display")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, level, err := loadConfig(cmd)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}
	logger := bletemp.NewLogger(level)

	open, err := openFunc(cfg, logger)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}
	mode, err := bletemp.ParseDecodeMode(cfg.DecodeMode)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	sensor, err := bletemp.New(
		bletemp.WithOpenFunc(open),
		bletemp.WithNameMatch(cfg.NameMatch),
		bletemp.WithScanDwell(cfg.ScanDwell),
		bletemp.WithDecodeMode(mode),
		bletemp.WithLogger(logger),
	)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}

	stateChan := make(chan bletemp.ConnectionStatus, 16)
	sensor.SetStateChangeChannel(stateChan)
	go func() {
		for st := range stateChan {
			logger.Debugf("state change: %v", st.State)
			if st.State == bletemp.StateConnected {
				logger.Infof("connected to sensor %s", sensor.Peripheral())
			}
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := display.NewSampleQueue(cfg.SampleBuffer)
	waker := display.NewWaker()
	sink := display.NewSink(queue, waker,
		display.NewTerminalRenderer(cmd.OutOrStdout()),
		display.WithFrameInterval(cfg.FrameInterval),
	)

	acqDone := make(chan error, 1)
	go func() {
		acqDone <- sensor.Run(ctx, queue.Emit, waker.Wake)
	}()

	// The display keeps showing the samples it holds until it is closed,
	// even if the acquisition has ended
	sinkErr := sink.Run(ctx)
	stop()

	acqErr := <-acqDone
	close(stateChan)

	if dropped := queue.Dropped(); dropped > 0 {
		logger.Infof("dropped %d samples while the display was busy", dropped)
	}
	if sinkErr != nil {
		return fmt.Errorf("display failed: %w", sinkErr)
	}
	if !isShutdown(acqErr) {
		return &exitError{code: exitAcquisition, err: acqErr}
	}

	return nil
}

// isShutdown determines if the acquisition ended because the tool was closed
func isShutdown(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, bletemp.ErrUIGone)
}

// loadConfig reads the configuration file (if any), overrides it with all
// explicitly set flags and resolves the log level
func loadConfig(cmd *cobra.Command) (*config.Config, zapcore.Level, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, zapcore.InfoLevel, err
		}
	}
	fileLevel := cfg.LogLevel

	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("name-match") {
		cfg.NameMatch, _ = flags.GetString("name-match")
	}
	if flags.Changed("scan-dwell") {
		cfg.ScanDwell, _ = flags.GetDuration("scan-dwell")
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
	}
	if flags.Changed("decode-mode") {
		cfg.DecodeMode, _ = flags.GetString("decode-mode")
	}
	if flags.Changed("frame-interval") {
		cfg.FrameInterval, _ = flags.GetDuration("frame-interval")
	}
	if flags.Changed("sample-buffer") {
		cfg.SampleBuffer, _ = flags.GetInt("sample-buffer")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, zapcore.InfoLevel, err
	}

	level, err := resolveLogLevel(flags.Changed("log-level"), cfg.LogLevel, fileLevel)
	if err != nil {
		return nil, zapcore.InfoLevel, err
	}

	return cfg, level, nil
}

// resolveLogLevel applies the precedence flag > environment > file
func resolveLogLevel(flagSet bool, flagLevel, fileLevel string) (zapcore.Level, error) {
	if flagSet {
		return zapcore.ParseLevel(flagLevel)
	}
	if level, ok := bletemp.LevelFromEnv(); ok {
		return level, nil
	}
	return zapcore.ParseLevel(fileLevel)
}

func openSim(cfg *config.Config) bletemp.OpenFunc {
	return sim.NewThermometer(sim.ThermometerConfig{
		AppearAfter: cfg.Sim.AppearAfter,
		Interval:    cfg.Sim.Interval,
		BaseCelsius: cfg.Sim.BaseCelsius,
		Fahrenheit:  cfg.Sim.Fahrenheit,
	}).Open
}
