package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/badno/pimsync/internal/config"
	"github.com/badno/pimsync/internal/logging"
	"github.com/badno/pimsync/internal/orchestrator"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pimsync",
	Short: "Product catalog sync engine",
	Long: color.New(color.FgCyan, color.Bold).Sprint(`
        _                              
  _ __ (_)_ __ ___  ___ _   _ _ __   ___
 | '_ \| | '_ ' _ \/ __| | | | '_ \ / __|
 | |_) | | | | | | \__ \ |_| | | | | (__
 | .__/|_|_| |_| |_|___/\__, |_| |_|\___|
 |_|                    |___/
`) + `
pimsync - local product catalog with Shopify sync

Manage products and category fields in flat files, import supplier
uploads, and push or pull the catalog to and from Shopify in batches.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnv()
	},
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the running job, which
// stops a push after the current product.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.pimsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(dbCmd)
}

// resolveConfigPath returns the --config path or the default location
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newOrchestrator loads config, builds the logger and initializes an orchestrator.
// Callers must Close it.
func newOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig()
	if err != nil {
		color.Red("  Error loading configuration: %v", err)
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	orch := orchestrator.New(cfg, logger)
	if err := orch.Initialize(ctx); err != nil {
		logger.Error("initialize failed", zap.Error(err))
		return nil, err
	}
	return orch, nil
}

func printHeader(title string) {
	color.New(color.FgCyan, color.Bold).Printf("\n  %s\n", title)
	fmt.Println("  " + strings.Repeat("─", 40))
	fmt.Println()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// newTable returns a borderless, left-aligned table with a cyan header
func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	colors := make([]tablewriter.Colors, len(header))
	for i := range colors {
		colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor}
	}
	table.SetHeaderColor(colors...)
	return table
}
