package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/badno/pimsync/internal/orchestrator"
	"github.com/badno/pimsync/internal/syncer"
	"github.com/badno/pimsync/pkg/models"
)

var (
	pushStart   int
	pushCount   int
	pushAll     bool
	pushResume  bool
	historyLast int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the catalog with Shopify",
	Long:  `Push local products to Shopify, pull the remote catalog, and refresh categories.`,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push products to Shopify",
	Long: `Push a batch of products to Shopify. Products with a Shopify id are
updated, the rest are created and their new id is written back.`,
	RunE: runSyncPush,
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge the Shopify catalog into local products",
	RunE:  runSyncPull,
}

var syncRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh product types, tags and vendors from Shopify",
	RunE:  runSyncRefresh,
}

var syncStockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Show Shopify stock levels per product",
	RunE:  runSyncStock,
}

var syncTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the Shopify connection",
	RunE:  runSyncTest,
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	RunE:  runSyncHistory,
}

func init() {
	syncPushCmd.Flags().IntVar(&pushStart, "start", 0, "Index of the first product")
	syncPushCmd.Flags().IntVar(&pushCount, "count", 0, "Products per batch (default: sync.batch_size)")
	syncPushCmd.Flags().BoolVar(&pushAll, "all", false, "Push batches until every product was pushed")
	syncPushCmd.Flags().BoolVar(&pushResume, "resume", false, "Start where the last push stopped")
	syncHistoryCmd.Flags().IntVar(&historyLast, "last", 20, "Number of runs to show")

	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncRefreshCmd)
	syncCmd.AddCommand(syncStockCmd)
	syncCmd.AddCommand(syncTestCmd)
	syncCmd.AddCommand(syncHistoryCmd)
}

func runSyncPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("PUSHING TO SHOPIFY")

	products, err := orch.Catalog().LoadProducts(false)
	if err != nil {
		return err
	}
	start := pushStart
	if pushResume {
		if cur, ok := orch.Journal().Cursor(); ok {
			start = cur.NextStart
			color.Yellow("  Resuming at product %d of %d\n\n", start, cur.Total)
		}
	}
	todo := len(products) - start
	if !pushAll {
		count := pushCount
		if count <= 0 {
			count = orch.Config().Sync.BatchSize
		}
		todo = min(todo, count)
	}

	bar := progressbar.NewOptions(max(todo, 0),
		progressbar.OptionSetDescription("  Pushing products"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.GreenString("█"),
			SaucerHead:    color.GreenString("█"),
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowCount(),
	)

	summary, err := orch.Push(ctx, orchestrator.PushOptions{
		Start:  pushStart,
		Count:  pushCount,
		All:    pushAll,
		Resume: pushResume,
		OnBatch: func(res *syncer.PushResult) {
			_ = bar.Add(res.Processed)
		},
	})
	fmt.Println()
	fmt.Println()
	if summary == nil {
		color.Red("  Error: %v", err)
		return err
	}

	printPushSummary(summary)
	if err != nil {
		color.Red("  Push stopped: %v", err)
		color.Yellow("  Continue with 'pimsync sync push --resume'")
		fmt.Println()
	}
	return err
}

func printPushSummary(s *syncer.PushSummary) {
	if len(s.Errors) > 0 || len(s.Warnings) > 0 {
		table := newTable("#", "Product", "Type", "Message")
		for _, e := range s.Errors {
			table.Append([]string{strconv.Itoa(e.ProductIndex), truncate(e.Product, 30), color.RedString(string(e.Type)), truncate(e.Message, 60)})
		}
		for _, w := range s.Warnings {
			table.Append([]string{strconv.Itoa(w.ProductIndex), truncate(w.Product, 30), color.YellowString(string(w.Type)), truncate(w.Message, 60)})
		}
		table.Render()
		fmt.Println()
	}

	color.Green("  ✓ Updated %d, created %d", s.Updated, s.Created)
	if s.Failed > 0 {
		color.Red("  ✗ %d products failed", s.Failed)
	}
	fmt.Printf("  Products %d-%d of %d", s.Start, s.NextStart, s.Total)
	if s.Batches > 1 {
		fmt.Printf(" in %d batches", s.Batches)
	}
	fmt.Println()
	if s.NextStart < s.Total {
		color.Yellow("  Next batch starts at %d ('pimsync sync push --resume')", s.NextStart)
	}
	fmt.Println()
}

func runSyncPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("PULLING FROM SHOPIFY")

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("  Fetching catalog"),
		progressbar.OptionSpinnerType(14),
	)
	res, err := orch.Pull(ctx)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	color.Green("  ✓ Fetched %d remote products", res.Remote)
	fmt.Printf("  Merged:     %d\n", res.Merged)
	fmt.Printf("  Added:      %d\n", res.Added)
	fmt.Printf("  Local only: %d\n", res.LocalOnly)
	fmt.Printf("  Total:      %d\n\n", res.Total)
	return nil
}

func runSyncRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("REFRESHING CATEGORIES")

	res, err := orch.RefreshCategories(ctx)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	for _, t := range models.RemoteDerivedTypes {
		fmt.Printf("  %-14s +%d\n", t, res.Added[t])
	}
	for _, f := range res.Skipped {
		color.Yellow("  ⚠ %s %q skipped, name already used", f.Type, f.Name)
	}
	fmt.Println()
	color.Green("  ✓ %d category fields", res.Total)
	fmt.Println()
	return nil
}

func runSyncStock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("STOCK LEVELS")

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("  Fetching inventory"),
		progressbar.OptionSpinnerType(14),
	)
	report, err := orch.Stock(ctx)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	table := newTable("Shopify ID", "SKU", "Title", "Available", "Locations")
	for _, p := range report.Products {
		available := strconv.Itoa(p.Available)
		switch {
		case p.Untracked:
			available = color.YellowString("untracked")
		case p.Available <= 0:
			available = color.RedString(available)
		}
		table.Append([]string{
			strconv.FormatInt(p.ProductID, 10),
			p.SKU,
			truncate(p.Title, 40),
			available,
			strconv.Itoa(len(p.ByLocation)),
		})
	}
	table.Render()
	fmt.Println()

	color.Green("  ✓ %d products across %d locations", len(report.Products), len(report.Locations))
	if report.FailedBatches > 0 {
		color.Yellow("  ⚠ %d lookup batches failed (%d inventory items)", report.FailedBatches, report.FailedItems)
	}
	fmt.Println()
	return nil
}

func runSyncTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	fmt.Println("Testing Shopify connection...")
	if err := orch.TestConnection(ctx); err != nil {
		color.Red("✗ Connection failed: %v", err)
		return err
	}
	color.Green("✓ Connected to %s", orch.Config().Remote.Store)
	if !orch.Config().Sync.Live {
		color.Yellow("  Live sync is disabled; enable it with 'pimsync config set sync.live true'")
	}
	return nil
}

func runSyncHistory(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("SYNC HISTORY")

	history := orch.History(historyLast)
	if len(history) == 0 {
		color.Yellow("  No runs recorded yet")
		fmt.Println()
		return nil
	}

	table := newTable("Started", "Action", "Count", "Updated", "Created", "Failed", "Took", "Details")

	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		failed := strconv.Itoa(h.Failed)
		if h.Failed > 0 {
			failed = color.RedString(failed)
		}
		table.Append([]string{
			h.Timestamp.Format("2006-01-02 15:04"),
			h.Action,
			strconv.Itoa(h.Count),
			strconv.Itoa(h.Updated),
			strconv.Itoa(h.Created),
			failed,
			h.Duration().Round(time.Millisecond).String(),
			truncate(h.Details, 50),
		})
	}
	table.Render()
	fmt.Println()

	if cur, ok := orch.Journal().Cursor(); ok {
		color.Yellow("  Unfinished push: next product %d of %d", cur.NextStart, cur.Total)
		fmt.Println()
	}
	return nil
}
