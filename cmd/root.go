package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/config"
	"github.com/xkilldash9x/shotcheck/internal/observability"
)

type ctxKey int

const configKey ctxKey = iota

// ErrChecksFailed is returned when a run completed but some checks failed.
var ErrChecksFailed = errors.New("checks failed")

// osExit is swapped in tests.
var osExit = os.Exit

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "shotcheck",
		Short:         "Shotcheck compares rendered pages against expected screenshots.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "shotcheck"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting shotcheck", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./shotcheck.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		if !errors.Is(err, ErrChecksFailed) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		osExit(1)
	}
}

// initializeConfig reads the config file and binds SHOTCHECK_* environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("shotcheck")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SHOTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func configFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}
