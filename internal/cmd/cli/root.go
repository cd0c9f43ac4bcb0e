package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/runtime"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// app carries the persistent flags and what PersistentPreRunE derives from
// them.
type app struct {
	configPath string
	dataDir    string
	queueName  string
	logLevel   string
	logFormat  string

	cfg    cfgpkg.Config
	logger logpkg.Logger
}

// NewRoot constructs the root Cobra command with every subcommand attached.
func NewRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "flolog",
		Short:         "Segmented append-only log",
		Long:          "flolog appends to, tails and inspects a persistent segmented log on local disk.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c, ok := a.logger.(interface{ Close() error }); ok {
				return c.Close()
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (.json, .yaml or .yml)")
	pf.StringVar(&a.dataDir, "data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	pf.StringVar(&a.queueName, "queue", "", "Queue name used to scope consumer cursors")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text|json (default text)")

	root.AddCommand(
		newAppendCommand(a),
		newTailCommand(a),
		newInspectCommand(a),
		newVerifyCommand(a),
		newCursorsCommand(a),
	)
	return root
}

// init resolves the layered config and builds the process logger.
func (a *app) init() error {
	cfg, err := cfgpkg.Load(a.configPath)
	if err != nil {
		return err
	}
	cfgpkg.FromEnv(&cfg)
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.queueName != "" {
		cfg.QueueName = a.queueName
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logpkg.ApplyConfig(cfg.Log)
	if err != nil {
		return err
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) openRuntime() (*runtime.Runtime, error) {
	return runtime.Open(runtime.Options{Config: a.cfg, Logger: a.logger.WithComponent("runtime")})
}
