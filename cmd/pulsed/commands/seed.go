package commands

import (
	"os"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/seed"
	"github.com/teranos/pulsed/sym"
)

// SeedCmd creates jobs and tasks from a YAML manifest
var SeedCmd = &cobra.Command{
	Use:   "seed <manifest.yaml>",
	Short: sym.Pulse + " Create jobs and tasks from a YAML manifest",
	Long: sym.Pulse + ` seed - Create jobs and tasks from a YAML manifest

Tasks refer to jobs and earlier tasks by key, so a whole dependency chain can
be created in one go:

  jobs:
    - key: report
      script: pulse.shell
      required_slots: 16
      maximum_execution_time: 300
  tasks:
    - key: nightly
      job: report
      start_in: 0s
      recurrence: 86400
      metadata:
        command: make report
    - key: publish
      job: report
      after: nightly

Use --dry-run to validate the manifest without touching the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

var seedDryRunFlag bool

func init() {
	SeedCmd.Flags().BoolVar(&seedDryRunFlag, "dry-run", false, "Validate only")
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to open manifest %s", args[0])
	}
	defer f.Close()

	m, err := seed.Load(f)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if seedDryRunFlag {
		pterm.Success.Printf("Manifest is valid: %d jobs, %d tasks\n", len(m.Jobs), len(m.Tasks))
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	res, err := seed.Apply(contextOf(cmd), st, m, time.Now())
	if res != nil {
		if rerr := renderTable(seedRows(res)); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return err
	}
	pterm.Success.Printf("Seeded %d jobs and %d tasks\n", len(res.Jobs), len(res.Tasks))
	return nil
}

func seedRows(res *seed.Result) pterm.TableData {
	data := pterm.TableData{{"KIND", "KEY", "ID"}}
	add := func(kind string, ids map[string]string) {
		keys := make([]string, 0, len(ids))
		for k := range ids {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			data = append(data, []string{kind, k, ids[k]})
		}
	}
	add("job", res.Jobs)
	add("task", res.Tasks)
	return data
}
