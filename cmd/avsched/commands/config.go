package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/sym"
)

// ConfigCmd groups configuration inspection commands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: sym.AM + " Inspect the scheduler configuration",
	Long: sym.AM + ` config: inspect the scheduler configuration

The configuration file is found by, in order:
  1. --config <path>
  2. $` + am.DirEnvVar + `/` + am.DefaultFileName + `
  3. ` + am.HomeDirKey + ` in ~/` + am.HomeFileName + `
  4. ./` + am.DefaultFileName + `

Scalar settings can be overridden with ` + am.EnvPrefix + `_* environment variables,
e.g. ` + am.EnvPrefix + `_SETTINGS_DB_PATH or ` + am.EnvPrefix + `_WEB_SERVER_PORT.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate settings and every job",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where the configuration is loaded from",
	RunE:  runConfigWhere,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.LoadDefault(ConfigFlag)
	if err != nil {
		return err
	}
	return writeConfig(os.Stdout, cfg, configFormat)
}

// writeConfig renders cfg in format
func writeConfig(w io.Writer, cfg *am.Config, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(w, "# %s\n%s", cfg.Path(), string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(w, "# %s\n%s", cfg.Path(), string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.LoadDefault(ConfigFlag)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	problems := cfg.ValidateJobs()
	if len(problems) > 0 {
		printConfigProblems(problems)
		return errors.Newf("%d of %d jobs are invalid", len(problems), len(cfg.Jobs))
	}

	pterm.Success.Printfln("Configuration is valid (%d jobs)", len(cfg.Jobs))
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	type candidate struct {
		label string
		path  string
	}

	var candidates []candidate
	if ConfigFlag != "" {
		candidates = append(candidates, candidate{"--config", ConfigFlag})
	}
	if dir := os.Getenv(am.DirEnvVar); dir != "" {
		candidates = append(candidates, candidate{"$" + am.DirEnvVar, filepath.Join(dir, am.DefaultFileName)})
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, candidate{"pointer", filepath.Join(home, am.HomeFileName)})
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, candidate{"cwd", filepath.Join(cwd, am.DefaultFileName)})
	}

	fmt.Println("Configuration search order:")
	for i, c := range candidates {
		state := pterm.Gray("missing")
		if _, err := os.Stat(c.path); err == nil {
			state = pterm.Green("exists")
		}
		fmt.Printf("  %d. [%-8s] %s (%s)\n", i+1, c.label, c.path, state)
	}
	fmt.Println()

	path, err := am.Discover(ConfigFlag)
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Using %s", path)
	return nil
}
