// Package cmd implements the cryptonetd command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kacy/cryptonet/internal/config"
)

// v carries environment overrides and the flags bound to config keys.
var v *viper.Viper = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "cryptonetd",
	Short: "Privacy-preserving face matching daemon",
	Long: `cryptonetd runs the privid homomorphic face matching engine behind an
HTTP API, and offers one-shot commands for comparing faces and embeddings
from the command line.

Configuration is read from a TOML file (--config), then CRYPTONET_*
environment variables, then flags.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (TOML)")
	pf.String("engine", "", "engine kind: wasm or native")
	pf.String("wasm-path", "", "engine WebAssembly module")
	pf.String("settings-file", "", "session settings JSON file")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-file", "", "log file (default stderr)")

	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("engine.kind", pf.Lookup("engine"))
	_ = v.BindPFlag("engine.wasm_path", pf.Lookup("wasm-path"))
	_ = v.BindPFlag("engine.settings_file", pf.Lookup("settings-file"))
	_ = v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("logging.file", pf.Lookup("log-file"))
}

// loadConfig layers the config file, environment and flags, then validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	config.ApplyOverrides(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
