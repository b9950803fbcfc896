package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/badno/pimsync/internal/database/clickhouse"
	"github.com/badno/pimsync/internal/database/postgres"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  "Commands for the PostgreSQL run history and the ClickHouse sync events",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the run history schema",
	Long:  "Creates the sync_runs tables in PostgreSQL and the sync_events tables in ClickHouse",
	RunE:  runDBMigrate,
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last PostgreSQL migration",
	RunE:  runDBRollback,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	Long:  "Shows connection status, table counts, and database health information",
	RunE:  runDBStatus,
}

var dbRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List sync runs recorded in PostgreSQL",
	RunE:  runDBRuns,
}

var dbFailureRatesCmd = &cobra.Command{
	Use:   "failure-rates",
	Short: "Show daily sync failure rates from ClickHouse",
	RunE:  runDBFailureRates,
}

var dbBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Copy recorded runs from PostgreSQL into ClickHouse",
	RunE:  runDBBackfill,
}

var (
	runsLimit    int
	statsDays    int
	backfillDays int
)

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbRollbackCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbRunsCmd)
	dbCmd.AddCommand(dbFailureRatesCmd)
	dbCmd.AddCommand(dbBackfillCmd)

	dbRunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show")
	dbFailureRatesCmd.Flags().IntVar(&statsDays, "days", 30, "Days to include")
	dbBackfillCmd.Flags().IntVar(&backfillDays, "days", 30, "Backfill runs started in the last N days")
}

// getDBClients creates the configured database clients without connecting.
// Either may be nil when its section is not enabled.
func getDBClients() (*postgres.Client, *clickhouse.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var pg *postgres.Client
	if cfg.Database.UseDB {
		pc := cfg.Database.Postgres
		pgConfig := postgres.ConfigFromSettings(pc.Host, pc.Port, pc.Database, pc.SSLMode, pc.UsernameEnv, pc.PasswordEnv)
		if pgConfig.Username == "" {
			return nil, nil, fmt.Errorf("PostgreSQL username not set. Set the %s environment variable", pc.UsernameEnv)
		}
		pg = postgres.NewClient(pgConfig)
	}

	var ch *clickhouse.Client
	if cfg.Database.ClickHouse.Enabled {
		cc := cfg.Database.ClickHouse
		ch = clickhouse.NewClient(clickhouse.ConfigFromSettings(cc.Host, cc.Port, cc.Database, cc.Secure, cc.UsernameEnv, cc.PasswordEnv))
	}

	if pg == nil && ch == nil {
		return nil, nil, fmt.Errorf("no database enabled. Set database.use_db or database.clickhouse.enabled")
	}
	return pg, ch, nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	pg, ch, err := getDBClients()
	if err != nil {
		return err
	}

	if pg != nil {
		if err := pg.Connect(ctx); err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.RunMigrations(); err != nil {
			return err
		}
		version, dirty, err := pg.MigrationVersion()
		if err != nil {
			return err
		}
		color.Green("✓ PostgreSQL schema at %s", migrationLabel(version, dirty))
	}

	if ch != nil {
		if err := ch.Connect(ctx); err != nil {
			return err
		}
		defer ch.Close()

		if err := ch.InitSchema(ctx); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
		color.Green("✓ ClickHouse schema ready")
	}
	return nil
}

func runDBRollback(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	pg, _, err := getDBClients()
	if err != nil {
		return err
	}
	if pg == nil {
		return fmt.Errorf("PostgreSQL not enabled. Set database.use_db")
	}
	if err := pg.Connect(ctx); err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.RollbackMigration(); err != nil {
		return err
	}
	version, _, _ := pg.MigrationVersion()
	color.Green("✓ Rolled back to version %d", version)
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pg, ch, err := getDBClients()
	if err != nil {
		return err
	}

	if pg != nil {
		printPostgresStatus(ctx, pg)
	}
	if ch != nil {
		printClickHouseStatus(ctx, ch)
	}
	return nil
}

func printPostgresStatus(ctx context.Context, client *postgres.Client) {
	printHeader("POSTGRESQL")
	if err := client.Connect(ctx); err != nil {
		color.Red("  ✗ %v", err)
		return
	}
	defer client.Close()

	info, err := client.GetDatabaseInfo(ctx)
	if err != nil {
		color.Red("✗ Failed to get database info: %v", err)
		return
	}

	migration := color.YellowString("not initialized")
	if version, dirty, err := client.MigrationVersion(); err == nil && version > 0 {
		migration = migrationLabel(version, dirty)
	}
	printFields(
		"Server", truncate(info.Version, 60),
		"Database", info.DatabaseName,
		"Size", info.DatabaseSize,
		"Connections", fmt.Sprintf("%d of %d", info.ConnectionsNow, info.ConnectionsMax),
		"Migration", migration,
	)

	stats, err := client.GetTableStats(ctx)
	if err != nil {
		color.Red("✗ Failed to get table stats: %v", err)
		return
	}
	if len(stats) > 0 {
		fmt.Println("\n" + color.CyanString("Table Statistics"))

		table := newTable("Table", "Rows", "Size")
		for _, s := range stats {
			table.Append([]string{s.TableName, strconv.FormatInt(s.RowCount, 10), s.Size})
		}
		table.Render()
	}

	if ps := client.Stats(); ps != nil {
		printFields("Pool", fmt.Sprintf("%d open, %d idle, %d in use", ps.TotalConns(), ps.IdleConns(), ps.AcquiredConns()))
	}
	fmt.Println()
}

func printClickHouseStatus(ctx context.Context, client *clickhouse.Client) {
	printHeader("CLICKHOUSE")
	if err := client.Connect(ctx); err != nil {
		color.Red("  ✗ %v", err)
		return
	}
	defer client.Close()

	if events, err := client.EventCount(ctx); err == nil {
		printFields("Sync events", strconv.FormatUint(events, 10))
	}

	tables, err := client.GetTableInfo(ctx)
	if err != nil {
		color.Red("✗ Failed to get table info: %v", err)
		return
	}
	if len(tables) > 0 {
		fmt.Println("\n" + color.CyanString("Tables"))

		table := newTable("Table", "Engine", "Rows", "Bytes")
		for _, t := range tables {
			table.Append([]string{t.Name, t.Engine, strconv.FormatUint(t.Rows, 10), strconv.FormatUint(t.BytesSize, 10)})
		}
		table.Render()
	}
	fmt.Println()
}

func runDBRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	runs, err := orch.RecentRuns(ctx, runsLimit)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	printHeader("RECORDED SYNC RUNS")

	table := newTable("Run", "Action", "Store", "Started", "Processed", "Updated", "Created", "Failed")
	for _, r := range runs {
		failed := strconv.Itoa(r.Failed)
		if r.Failed > 0 {
			failed = color.RedString(failed)
		}
		table.Append([]string{
			r.ID.String()[:8],
			r.Action,
			r.Store,
			r.StartedAt.Format("2006-01-02 15:04"),
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Created),
			failed,
		})
	}
	table.Render()
	fmt.Println()
	return nil
}

func runDBFailureRates(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	since := time.Now().AddDate(0, 0, -statsDays)
	rates, err := orch.FailureRates(ctx, since)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	printHeader(fmt.Sprintf("FAILURE RATES (LAST %d DAYS)", statsDays))
	if len(rates) == 0 {
		color.Yellow("  No sync events recorded")
		fmt.Println()
		return nil
	}

	table := newTable("Day", "Action", "Items", "Failed", "Rate", "Top error")
	for _, r := range rates {
		rate := fmt.Sprintf("%.1f%%", r.Rate*100)
		if r.Rate > 0.1 {
			rate = color.RedString(rate)
		}
		table.Append([]string{
			r.Day.Format("2006-01-02"),
			r.Action,
			strconv.FormatUint(r.Total, 10),
			strconv.FormatUint(r.Failed, 10),
			rate,
			r.TopError,
		})
	}
	table.Render()
	fmt.Println()
	return nil
}

func runDBBackfill(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	if orch.Postgres() == nil || orch.ClickHouse() == nil {
		err := fmt.Errorf("backfill needs both database.use_db and database.clickhouse.enabled")
		color.Red("  Error: %v", err)
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Backfilling last %d days", backfillDays)),
		progressbar.OptionSpinnerType(14),
	)

	backfill := clickhouse.NewSyncer(orch.Postgres(), orch.ClickHouse())
	result, err := backfill.SyncRecent(ctx, backfillDays)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	color.Green("✓ Read %d runs, wrote %d events in %s",
		result.RunsRead, result.RecordsSynced, result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	for _, e := range result.Errors {
		color.Yellow("  ⚠ %s", e)
	}
	return nil
}

func migrationLabel(version uint, dirty bool) string {
	label := fmt.Sprintf("v%d", version)
	if dirty {
		label += color.YellowString(" (dirty)")
	}
	return label
}

// printFields prints label/value pairs as an aligned block
func printFields(pairs ...string) {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Printf("  %-*s  %s\n", width+1, pairs[i]+":", pairs[i+1])
	}
}
