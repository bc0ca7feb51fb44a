package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/qualitygate/internal/config"
	"github.com/lucasnoah/qualitygate/internal/logging"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := resolveConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			if path == "" {
				cmd.Println("No config file found; built-in defaults are valid.")
			} else {
				cmd.Printf("Configuration %s is valid.\n", path)
			}
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := resolveConfig()
		if err != nil {
			return err
		}

		shown := *cfg
		shown.History.DSN = cfg.History.RedactedDSN()
		data, err := yaml.Marshal(shown)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

// resolveConfig prefers config -f over the global --config.
func resolveConfig() (*config.Config, string, error) {
	path := configPath
	if configFile != "" {
		path = configFile
	}
	cfg, resolved, err := config.Resolve(path)
	if err != nil {
		return nil, "", err
	}
	if resolved != "" {
		logging.Logger.Debugw("loaded config", "path", resolved)
	}
	return cfg, resolved, nil
}

// loadConfig resolves the configuration and rejects invalid files.
func loadConfig() (*config.Config, error) {
	cfg, path, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logging.Logger.Errorw("invalid config", "path", path, "field", e.Field, "error", e.Message)
		}
		if path == "" {
			path = "(defaults)"
		}
		return nil, fmt.Errorf("config %s has %d validation error(s); run 'qualitygate config validate'", path, len(errs))
	}
	return cfg, nil
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "path to config file")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
