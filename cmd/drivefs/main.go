// drivefs mounts a remote document collection as a read-only filesystem.
//
//	drivefs [flags] <account> <credential> <mountpoint>
//
// With the gdocs backend the account names the document feed and the
// credential is sent as a bearer token. With the s3 backend they are the
// access key id and secret. The listing is fetched once before mounting;
// SIGHUP fetches it again and SIGINT or SIGTERM unmounts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/adapter"
	"github.com/drivefs/drivefs/internal/config"
	"github.com/drivefs/drivefs/internal/fuse"
	"github.com/drivefs/drivefs/internal/metrics"
	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/internal/remote/gdocs"
	"github.com/drivefs/drivefs/internal/remote/s3"
	dfserrors "github.com/drivefs/drivefs/pkg/errors"
	"github.com/drivefs/drivefs/pkg/utils"
)

const usageLine = "usage: drivefs [flags] <account> <credential> <mountpoint>"

const shutdownTimeout = 10 * time.Second

// usageError reports a command line that cannot be run.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// invocation is a parsed command line.
type invocation struct {
	account    string
	credential string
	mountPoint string

	configPath string
	savePath   string
	flags      *pflag.FlagSet
	help       bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var ue *usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "drivefs: %s\n%s\n", ue.msg, usageLine)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "drivefs: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("drivefs", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringP("config", "c", "", "path to a YAML configuration file")
	fs.String("save-config", "", "write the effective configuration to this file")
	fs.String("backend", "", "remote backend: gdocs or s3")
	fs.String("base-url", "", "document service base URL (gdocs)")
	fs.String("bucket", "", "bucket name (s3)")
	fs.String("endpoint", "", "object store endpoint override (s3)")
	fs.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	fs.String("log-format", "", "log format: json or console")
	fs.String("log-file", "", "write logs to this file instead of stderr")
	fs.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	fs.Duration("refresh-interval", 0, "resync the listing at this interval (0 disables)")
	fs.Duration("timeout", 0, "per-request timeout (0 disables)")
	fs.Bool("allow-other", false, "allow other users to access the mount")
	fs.Bool("debug", false, "log every FUSE request")
	fs.BoolP("help", "h", false, "show help")
	return fs
}

// parseArgs parses flags and the three positional parameters.
func parseArgs(args []string) (*invocation, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return &invocation{flags: fs, help: true}, nil
		}
		return nil, &usageError{msg: err.Error()}
	}
	if help, _ := fs.GetBool("help"); help {
		return &invocation{flags: fs, help: true}, nil
	}

	pos := fs.Args()
	if len(pos) != 3 {
		return nil, &usageError{msg: fmt.Sprintf("expected 3 arguments, got %d", len(pos))}
	}
	configPath, _ := fs.GetString("config")
	savePath, _ := fs.GetString("save-config")
	return &invocation{
		account:    pos[0],
		credential: pos[1],
		mountPoint: pos[2],
		configPath: configPath,
		savePath:   savePath,
		flags:      fs,
	}, nil
}

// loadConfiguration layers defaults, the config file, the environment and
// explicitly set flags, then validates the result.
func loadConfiguration(inv *invocation) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if inv.configPath != "" {
		if err := cfg.LoadFromFile(inv.configPath); err != nil {
			return nil, dfserrors.NewError(dfserrors.ErrCodeConfigLoad, "failed to load configuration").
				WithContext("path", inv.configPath).
				WithCause(err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, dfserrors.NewError(dfserrors.ErrCodeConfigLoad, "failed to read environment").
			WithCause(err)
	}

	fs := inv.flags
	if fs.Changed("backend") {
		cfg.Remote.Backend, _ = fs.GetString("backend")
	}
	if fs.Changed("base-url") {
		cfg.Remote.BaseURL, _ = fs.GetString("base-url")
	}
	if fs.Changed("bucket") {
		cfg.S3.Bucket, _ = fs.GetString("bucket")
	}
	if fs.Changed("endpoint") {
		cfg.S3.Endpoint, _ = fs.GetString("endpoint")
	}
	if fs.Changed("log-level") {
		level, _ := fs.GetString("log-level")
		cfg.Global.LogLevel = strings.ToUpper(level)
	}
	if fs.Changed("log-format") {
		cfg.Global.LogFormat, _ = fs.GetString("log-format")
	}
	if fs.Changed("log-file") {
		cfg.Global.LogFile, _ = fs.GetString("log-file")
	}
	if fs.Changed("metrics-port") {
		cfg.Global.MetricsPort, _ = fs.GetInt("metrics-port")
	}
	if fs.Changed("refresh-interval") {
		cfg.Remote.RefreshInterval, _ = fs.GetDuration("refresh-interval")
	}
	if fs.Changed("timeout") {
		cfg.Remote.Timeout, _ = fs.GetDuration("timeout")
	}
	if fs.Changed("allow-other") {
		cfg.Mount.AllowOther, _ = fs.GetBool("allow-other")
	}
	if fs.Changed("debug") {
		cfg.Mount.Debug, _ = fs.GetBool("debug")
	}

	if err := cfg.Validate(); err != nil {
		return nil, dfserrors.NewError(dfserrors.ErrCodeConfigValidation, "invalid configuration").
			WithCause(err)
	}
	return cfg, nil
}

// newClient builds the remote client selected by cfg.
func newClient(ctx context.Context, cfg *config.Configuration, account, credential string, logger *zap.Logger) (remote.Client, error) {
	switch cfg.Remote.Backend {
	case config.BackendS3:
		c, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     account,
			SecretAccessKey: credential,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendGDocs:
		c, err := gdocs.New(gdocs.Config{
			BaseURL:    cfg.Remote.BaseURL,
			Account:    account,
			Credential: credential,
			UserAgent:  cfg.Remote.UserAgent,
			AcceptGzip: cfg.Remote.AcceptGzip,
			Timeout:    cfg.Remote.Timeout,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, dfserrors.NewError(dfserrors.ErrCodeInvalidConfig, "unknown backend").
			WithContext("backend", cfg.Remote.Backend)
	}
}

func mountConfig(cfg *config.Configuration, mountPoint string) *fuse.MountConfig {
	return &fuse.MountConfig{
		MountPoint: mountPoint,
		Options: &fuse.MountOptions{
			FSName:         cfg.Mount.FSName,
			Subtype:        cfg.Mount.Subtype,
			AllowOther:     cfg.Mount.AllowOther,
			Debug:          cfg.Mount.Debug,
			SingleThreaded: cfg.Mount.SingleThreaded,
			AttrTimeout:    cfg.Mount.AttrTimeout,
			EntryTimeout:   cfg.Mount.EntryTimeout,
		},
	}
}

// saveConfiguration writes cfg to the --save-config path, if one was given.
func saveConfiguration(inv *invocation, cfg *config.Configuration) error {
	if inv.savePath == "" {
		return nil
	}
	if err := cfg.SaveToFile(inv.savePath); err != nil {
		return dfserrors.NewError(dfserrors.ErrCodeConfigLoad, "failed to save configuration").
			WithContext("path", inv.savePath).
			WithCause(err)
	}
	return nil
}

func run(args []string) error {
	inv, err := parseArgs(args)
	if err != nil {
		return err
	}
	if inv.help {
		fmt.Fprintln(os.Stdout, usageLine)
		fmt.Fprint(os.Stdout, inv.flags.FlagUsages())
		return nil
	}

	cfg, err := loadConfiguration(inv)
	if err != nil {
		return err
	}
	if err := saveConfiguration(inv, cfg); err != nil {
		return err
	}

	logger, _, err := utils.SetupLogging(utils.LoggingConfig{
		Level:      cfg.Global.LogLevel,
		Format:     cfg.Global.LogFormat,
		OutputPath: cfg.Global.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newClient(ctx, cfg, inv.account, inv.credential, logger)
	if err != nil {
		logger.Error("failed to create remote client", zap.Error(err))
		return err
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Global.MetricsPort > 0,
		Port:      cfg.Global.MetricsPort,
		Path:      "/metrics",
		Namespace: "drivefs",
		Labels:    map[string]string{"backend": client.Name()},
	}, logger)
	if err != nil {
		return err
	}
	tracker := newRemoteHealth(client.Name(), logger)
	collector.SetHealth(tracker)
	if err := collector.Start(ctx); err != nil {
		return err
	}

	a, err := adapter.New(ctx, adapter.Options{
		Client:  client,
		Logger:  logger,
		Metrics: syncHealth{MetricsRecorder: collector, tracker: tracker},
		Query: remote.Query{
			MaxResults: cfg.Remote.MaxResults,
		},
		RefreshInterval: cfg.Remote.RefreshInterval,
	})
	if err != nil {
		logger.Error("initial sync failed", zap.Error(err))
		stopCollector(collector, logger)
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCollector(collector, logger)
		return err
	}

	mount := fuse.CreatePlatformMountManager(a, mountConfig(cfg, inv.mountPoint), logger)
	if err := mount.Mount(ctx); err != nil {
		logger.Error("mount failed", zap.Error(err))
		_ = a.Stop(context.Background())
		stopCollector(collector, logger)
		return err
	}

	logger.Info("filesystem mounted",
		zap.String("mountpoint", inv.mountPoint),
		zap.String("backend", client.Name()),
		zap.Int("entries", a.Stats().Entries))

	serve(ctx, a, mount, logger)

	if mount.IsMounted() {
		if err := mount.Unmount(); err != nil {
			logger.Error("unmount failed", zap.Error(err))
		}
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := a.Stop(shutdownCtx); err != nil {
		logger.Warn("refresh loop did not stop", zap.Error(err))
	}
	stopCollector(collector, logger)

	stats := a.Stats()
	logger.Info("stopped",
		zap.Int64("syncs", stats.Syncs),
		zap.Int64("reads", stats.Reads),
		zap.Int64("fetches", stats.Fetches),
		zap.String("fetched", utils.FormatBytes(stats.BytesFetched)))
	return nil
}

// serve blocks until a termination signal arrives or the mount goes away,
// refreshing the listing on SIGHUP.
func serve(ctx context.Context, a *adapter.Adapter, mount fuse.PlatformFileSystem, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("refresh requested")
				if err := a.Refresh(ctx); err != nil {
					logger.Warn("refresh failed, keeping previous listing", zap.Error(err))
				}
				continue
			}
			logger.Info("shutting down", zap.String("signal", sig.String()))
			return
		case <-mount.Done():
			logger.Info("filesystem unmounted externally")
			return
		}
	}
}

func stopCollector(c *metrics.Collector, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
}
