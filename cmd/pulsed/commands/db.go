package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsed/am"
	"github.com/teranos/pulsed/pulse/task"
	"github.com/teranos/pulsed/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Migrate and inspect the task database",
	Long: sym.DB + ` db - Migrate and inspect the task database

Examples:
  pulsed db migrate     # Apply pending migrations
  pulsed db stats       # Count jobs and tasks by status`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job and task counts",
	Args:  cobra.NoArgs,
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	pterm.Success.Printf("%s %s database is up to date\n", sym.DB, cfg.Database.Driver)
	return nil
}

// statusOrder is the display order of task counts
var statusOrder = []task.Status{
	task.StatusPending,
	task.StatusInProgress,
	task.StatusCompleted,
	task.StatusFailed,
	task.StatusCanceled,
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := contextOf(cmd)
	jobList, err := st.ListJobs(ctx)
	if err != nil {
		return err
	}
	counts, err := st.CountByStatus(ctx)
	if err != nil {
		return err
	}

	pterm.Printf("%s Database Statistics\n", sym.DB)
	pterm.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	pterm.Printf("Driver:      %s\n", cfg.Database.Driver)
	if cfg.Database.Driver != am.DriverPostgres {
		pterm.Printf("Path:        %s\n", cfg.DataSource())
	}
	pterm.Printf("Jobs:        %d\n\n", len(jobList))
	return renderTable(countRows(counts))
}

func countRows(counts map[task.Status]int) pterm.TableData {
	data := pterm.TableData{{"STATUS", "TASKS"}}
	total := 0
	for _, s := range statusOrder {
		data = append(data, []string{statusText(s), pterm.Sprintf("%d", counts[s])})
		total += counts[s]
	}
	data = append(data, []string{"TOTAL", pterm.Sprintf("%d", total)})
	return data
}
