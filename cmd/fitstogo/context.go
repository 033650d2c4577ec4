package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"fitstogo/internal/config"
	"fitstogo/internal/daemonrun"
	"fitstogo/internal/logging"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	app *daemonrun.App
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// application wires the full component graph once per invocation. CLI logs go
// to stderr so table and JSON output stay clean.
func (c *commandContext) application(ctx context.Context) (*daemonrun.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := "error"
	if c.verbose != nil && *c.verbose {
		level = "info"
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, err
	}
	app, err := daemonrun.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

func (c *commandContext) withApp(cmd *cobra.Command, fn func(*daemonrun.App) error) error {
	app, err := c.application(cmd.Context())
	if err != nil {
		return err
	}
	return fn(app)
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
