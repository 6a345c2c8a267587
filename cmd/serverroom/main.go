package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/serverroom/internal/app"
	"codeberg.org/mutker/serverroom/internal/config"
	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/pid"
)

const logFilePerm = 0o644

var (
	version = "dev"
	cfg     *config.Config
	logFile *os.File
)

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := initLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	app.Version = version
}

// initLogger routes logs to the configured file. With the dashboard on and no
// file, logs are discarded so they do not tear the terminal UI.
func initLogger() error {
	level, ok := logger.ParseLevel(cfg.LogLevel.String())
	if !ok {
		return errors.New().WithData(errors.ErrInvalidLogLevel, cfg.LogLevel)
	}

	var out io.Writer = os.Stdout
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return errors.New().Wrap(errors.ErrInitFailed, err)
		}
		logFile = f
		out = f
	case cfg.Dashboard:
		out = nil
	}

	logger.InitWithWriter(out, level, logger.IsService() || logFile != nil)

	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	defer closeLogFile()

	if err := pid.Write(cfg.PidFile); err != nil {
		logger.Error().Err(err).Msg("Failed to write pid file")
		return 1
	}
	defer func() {
		if err := pid.Remove(cfg.PidFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove pid file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize")
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down cleanly")
		}
		logger.Info().Msg("Exiting...")
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
		return 1
	}

	return 0
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func closeLogFile() {
	if logFile != nil {
		_ = logFile.Close()
	}
}
