package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/slatelisp/slate/internal/config"
	"github.com/slatelisp/slate/internal/errors"
	"github.com/slatelisp/slate/pkg/nrepl"
	"github.com/slatelisp/slate/pkg/runtime"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		portFile   string
		httpAddr   string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation server",
		Long: `Start the evaluation server.

The server binds a TCP listener and accepts editor connections
speaking the bencode-framed session protocol. With --http it also
serves /healthz, /metrics, and a websocket transport.

Configuration is read from slate.json at the project root; flags
override it. Port 0 picks an ephemeral port, written to the
--port-file path when given.

Examples:
  slate serve
  slate serve --port=7888
  slate serve --port=0 --port-file=.slate-port
  slate serve --http=127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, host, port, portFile, httpAddr, logLevel, logFormat)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to slate.json (default: nearest project root)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind (default from slate.json)")
	cmd.Flags().IntVarP(&port, "port", "p", -1, "Port to bind, 0 for ephemeral (default from slate.json)")
	cmd.Flags().StringVar(&portFile, "port-file", "", "Write the bound port to this file")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve /healthz, /metrics and websocket transport on this address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Minimum log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	return cmd
}

func runServe(configPath, host string, port int, portFile, httpAddr, logLevel, logFormat string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Apply command-line overrides.
	if host != "" {
		cfg.Server.Host = host
	}
	if port >= 0 {
		cfg.Server.Port = port
	}
	if portFile != "" {
		cfg.Server.PortFile = portFile
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	env := runtime.NewEnv()
	interp := runtime.NewInterp(env)

	shutdownTimeout, err := cfg.ShutdownTimeout()
	if err != nil {
		return errors.New("E103").Wrap(err)
	}
	server := nrepl.New(&nrepl.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ChunkSize:       cfg.Server.ChunkSize,
		PortFile:        cfg.Server.PortFile,
		HTTPAddr:        cfg.Server.HTTPAddr,
		ShutdownTimeout: shutdownTimeout,
	}, env, interp)
	server.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HasTranscripts() {
		store, err := newTranscripts(ctx, cfg.Transcripts)
		if err != nil {
			return err
		}
		defer store.Close()
		server.SetTranscripts(store)
	}

	if err := server.Start(ctx); err != nil {
		return errors.New("E121").Wrap(err)
	}
	addr := <-server.Ready()

	printBanner()
	success("Listening on %s", addr)
	if cfg.Server.PortFile != "" {
		info("Port written to %s", cfg.Server.PortFile)
	}
	if sidecar := server.HTTPAddr(); sidecar != "" {
		info("HTTP sidecar on http://%s", sidecar)
	}
	info("Press Ctrl-C to stop")

	<-ctx.Done()
	fmt.Println("\n  Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadConfig resolves the effective configuration: an explicit file,
// the nearest project root, or defaults when no slate.json exists.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if root, err := config.FindProjectRoot(wd); err == nil {
		return config.Load(root)
	}
	return config.New(), nil
}

// newLogger builds the process logger from the log configuration.
func newLogger(lc config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, errors.New("E103").
			WithDetail("log.level must be one of debug, info, warn, error; got " + lc.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

// newTranscripts builds the S3 transcript store from configuration.
func newTranscripts(ctx context.Context, tc config.TranscriptsConfig) (*nrepl.S3Transcripts, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if tc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(tc.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.New("E123").Wrap(err)
	}
	client := s3.NewFromConfig(awsCfg)
	return nrepl.NewS3Transcripts(client, tc.Bucket, tc.Prefix), nil
}
