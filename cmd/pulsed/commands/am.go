package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsed/am"
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Show and initialise configuration",
	Long: sym.AM + ` am - Show and initialise pulsed configuration ("I am")

Configuration sources (later overrides earlier):
1. Built-in defaults
2. System config (/etc/pulsed/config.toml)
3. User config (~/.pulsed/am.toml)
4. Project config (./am.toml, searched up the directory tree)
5. Environment variables (PULSED_* prefix, plus DATABASE_URL and REDIS_ADDR)

Examples:
  pulsed am show                  # Show effective configuration
  pulsed am show --format json    # Show configuration as JSON
  pulsed am get scheduler.available_slots
  pulsed am where                 # Show which source set each value
  pulsed am init                  # Write defaults to ~/.pulsed/am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value using dot notation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	Args:  cobra.NoArgs,
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file holding the defaults",
	Long: `Write a config file holding the defaults.

The file goes to ~/.pulsed/am.toml unless a path is given. An existing file
is kept unless --force is set; when overwritten, up to three previous
versions are kept as .back1 to .back3.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

var (
	configFormat string
	amInitForce  bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().BoolVar(&amInitForce, "force", false, "Overwrite an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
}

// writeConfig renders cfg in one of the supported formats
func writeConfig(w io.Writer, cfg *am.Config, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Fprintf(w, "# pulsed configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Fprintf(w, "# pulsed configuration\n%s", string(data))

	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	v := am.GetViper()
	if !v.IsSet(args[0]) {
		return errors.NewNotFoundError("configuration key %q not found", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(args[0]))
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro := am.GetConfigIntrospection()

	if intro.ConfigFile != "" {
		pterm.Info.Printf("Active config file: %s\n", intro.ConfigFile)
	} else {
		pterm.Info.Println("No config file found; defaults and environment only")
	}

	data := pterm.TableData{{"KEY", "VALUE", "SOURCE", "FROM"}}
	for _, s := range intro.Settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), orDash(s.SourcePath)})
	}
	return renderTable(data)
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		p, err := am.UserConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !amInitForce {
		return errors.Wrapf(errors.ErrConflict, "%s already exists (use --force to overwrite)", path)
	}
	if err := am.WriteConfig(path, am.Defaults()); err != nil {
		return err
	}
	pterm.Success.Printf("%s Wrote %s\n", sym.AM, path)
	return nil
}
