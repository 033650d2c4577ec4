// Package daemonrun assembles the fitstogo components and runs the daemon
// process until it is signalled to stop.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"fitstogo/internal/config"
	"fitstogo/internal/daemon"
	"fitstogo/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
}

// Run starts the fitstogo daemon and blocks until SIGINT, SIGTERM or ctx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "fitstogod.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	app, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble components", logging.Error(err))
		return err
	}
	defer app.Close()
	logConfigSnapshot(logger, cfg)

	d, err := daemon.New(cfg, app.Store, logger, app.Workflow, app.Scheduler, app.API)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("fitstogo daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("tryon_provider", cfg.TryOn.Provider),
		logging.Int("workers", cfg.TryOn.Workers),
		logging.Bool("describe_garment", cfg.TryOn.DescribeGarment),
		logging.Bool("glm_key_present", cfg.GLM.APIKey != ""),
		logging.Bool("kie_key_present", cfg.Kie.APIKey != ""),
		logging.Bool("gemini_key_present", cfg.Gemini.APIKey != ""),
		logging.Bool("storage_configured", cfg.StorageConfigured()),
		logging.Bool("stripe_configured", cfg.StripeConfigured()),
		logging.Bool("redis_enabled", cfg.Redis.Enabled),
		logging.Bool("affiliate_sync_enabled", cfg.Affiliate.Enabled),
	)
}
