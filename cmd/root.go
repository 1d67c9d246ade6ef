// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// flagKeys maps command flags onto the config keys they override.
var flagKeys = map[string]string{
	"goal":       "run.goal",
	"output":     "output.path",
	"format":     "output.format",
	"engine":     "browser.engine",
	"headless":   "browser.headless",
	"classifier": "classifier.provider",
	"search":     "search.provider",
	"metrics":    "metrics.enabled",
}

// envAliases lets the usual provider variables work without the WAYPOINT_ prefix.
var envAliases = map[string][]string{
	"classifier.api_key":   {"WAYPOINT_CLASSIFIER_API_KEY", "MISTRAL_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
	"classifier.endpoint":  {"WAYPOINT_CLASSIFIER_ENDPOINT"},
	"search.api_key":       {"WAYPOINT_SEARCH_API_KEY", "BRAVE_API_KEY"},
	"credentials.username": {"WAYPOINT_CREDENTIALS_USERNAME", "WAYPOINT_USERNAME"},
	"credentials.password": {"WAYPOINT_CREDENTIALS_PASSWORD", "WAYPOINT_PASSWORD"},
	"database.url":         {"WAYPOINT_DATABASE_URL", "DATABASE_URL"},
	"output.path":          {"WAYPOINT_OUTPUT_PATH"},
	"browser.user_agent":   {"WAYPOINT_BROWSER_USER_AGENT"},
}

// NewRootCommand builds the command tree. Each call returns an independent tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "waypoint",
		Short:         "Waypoint drives a browser to a site's login page and account email settings.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "waypoint"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "waypoint"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting waypoint", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.config/waypoint/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "waypoint version %s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	observability.Sync()
	return err
}

// initializeConfig layers the config file, .env, environment and flags onto v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	// A missing .env is normal.
	_ = godotenv.Load()

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if dir, err := homedir.Expand("~/.config/waypoint"); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WAYPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}
