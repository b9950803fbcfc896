package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/badno/pimsync/internal/catalog"
	"github.com/badno/pimsync/internal/output"
	"github.com/badno/pimsync/pkg/models"
)

var (
	listLimit     int
	searchField   string
	searchValue   string
	updateBy      string
	deleteRemote  bool
	deleteBy      string
	importReplace bool
	exportFormat  string
	exportOutput  string
	exportFilters []string
	exportOnlyNew bool
	exportDryRun  bool
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Manage local products",
	Long:  `List, edit, import, and export the local product collection.`,
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE:  runProductsList,
}

var productsAddCmd = &cobra.Command{
	Use:   "add [key=value...]",
	Short: "Add a product",
	Long:  `Add a product. Products whose business key already exists are rejected.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProductsAdd,
}

var productsUpdateCmd = &cobra.Command{
	Use:   "update [identifier] [key=value...]",
	Short: "Update a product",
	Long:  `Update the product whose --by field (default id) equals identifier.`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runProductsUpdate,
}

var productsBulkEditCmd = &cobra.Command{
	Use:   "bulk-edit [field] [value] [index...]",
	Short: "Set one field on many products",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runProductsBulkEdit,
}

var productsDeleteCmd = &cobra.Command{
	Use:   "delete [index...]",
	Short: "Delete products",
	Long: `Delete products by row index, or a single product with --by key=value.
With --remote the deleted products are also removed from Shopify.`,
	RunE: runProductsDelete,
}

var productsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search products",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProductsSearch,
}

var productsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a CSV or TSV upload",
	Long:  `Import products from a CSV or TSV file. Unknown columns become custom fields.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProductsImport,
}

var productsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export products",
	Long:  `Export the product collection as csv, matrixify, json or jsonl.`,
	RunE:  runProductsExport,
}

func init() {
	productsListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum products to show (0 = all)")
	productsSearchCmd.Flags().StringVar(&searchField, "field", "", "Only match products where this field...")
	productsSearchCmd.Flags().StringVar(&searchValue, "value", "", "...equals this value")
	productsUpdateCmd.Flags().StringVar(&updateBy, "by", models.KeyID, "Field used to find the product")
	productsDeleteCmd.Flags().BoolVar(&deleteRemote, "remote", false, "Also delete the products in Shopify")
	productsDeleteCmd.Flags().StringVar(&deleteBy, "by", "", "Delete the product where key=value")
	productsImportCmd.Flags().BoolVar(&importReplace, "replace", false, "Replace the collection instead of appending")
	productsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(output.FormatCSV), "Export format (csv, matrixify, json, jsonl)")
	productsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: export dir)")
	productsExportCmd.Flags().StringArrayVar(&exportFilters, "filter", nil, "Only export products where key=value")
	productsExportCmd.Flags().BoolVar(&exportOnlyNew, "only-new", false, "Only export products without a Shopify id")
	productsExportCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "Count products without writing")

	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsAddCmd)
	productsCmd.AddCommand(productsUpdateCmd)
	productsCmd.AddCommand(productsBulkEditCmd)
	productsCmd.AddCommand(productsDeleteCmd)
	productsCmd.AddCommand(productsSearchCmd)
	productsCmd.AddCommand(productsImportCmd)
	productsCmd.AddCommand(productsExportCmd)
}

// parseAssignments turns key=value arguments into a record
func parseAssignments(args []string) (models.Record, error) {
	rec := models.Record{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		rec[key] = value
	}
	return rec, nil
}

func parseIndices(args []string) ([]int, error) {
	indices := make([]int, 0, len(args))
	for _, arg := range args {
		i, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", arg)
		}
		indices = append(indices, i)
	}
	return indices, nil
}

func appendProductRow(table *tablewriter.Table, index int, p models.Record) {
	id := p.RemoteID()
	if id == "" {
		id = color.YellowString("new")
	}
	table.Append([]string{
		strconv.Itoa(index),
		id,
		truncate(p.Label(), 40),
		p[models.KeyStatus],
		p[models.KeyCategory],
	})
}

func runProductsList(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("PRODUCTS")

	products, err := orch.Catalog().LoadProducts(true)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	if len(products) == 0 {
		color.Yellow("  No products. Run 'pimsync products import' or 'pimsync sync pull' first.")
		fmt.Println()
		return nil
	}

	table := newTable("#", "Shopify ID", "Title", "Status", "Category")
	for i, p := range products {
		if listLimit > 0 && i >= listLimit {
			break
		}
		appendProductRow(table, i, p)
	}
	table.Render()
	fmt.Println()

	created := 0
	for _, p := range products {
		if p.RemoteID() != "" {
			created++
		}
	}
	color.Green("  ✓ %d products, %d in Shopify", len(products), created)
	fmt.Println()
	return nil
}

func runProductsAdd(cmd *cobra.Command, args []string) error {
	rec, err := parseAssignments(args)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	added, err := orch.Catalog().AddProduct(rec)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	color.Green("  ✓ Added %s", added.Label())
	fmt.Println()
	return nil
}

func runProductsUpdate(cmd *cobra.Command, args []string) error {
	updates, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	updated, err := orch.Catalog().UpdateProduct(updateBy, args[0], updates)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	color.Green("  ✓ Updated %s (%d fields)", updated.Label(), len(updates))
	fmt.Println()
	return nil
}

func runProductsBulkEdit(cmd *cobra.Command, args []string) error {
	indices, err := parseIndices(args[2:])
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	n, err := orch.Catalog().BulkEdit(indices, args[0], args[1])
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	color.Green("  ✓ Set %s on %d products", args[0], n)
	fmt.Println()
	return nil
}

func runProductsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	indices, err := parseIndices(args)
	if err != nil {
		return err
	}
	if deleteBy != "" {
		key, value, ok := strings.Cut(deleteBy, "=")
		if !ok {
			return fmt.Errorf("--by expects key=value, got %q", deleteBy)
		}
		products, err := orch.Catalog().LoadProducts(false)
		if err != nil {
			return err
		}
		idx := catalog.FindProduct(products, key, value)
		if idx < 0 {
			color.Red("  No product with %s = %s", key, value)
			return fmt.Errorf("product not found: %s", value)
		}
		indices = append(indices, idx)
	}
	if len(indices) == 0 {
		return fmt.Errorf("nothing to delete: pass row indices or --by key=value")
	}

	res, err := orch.DeleteProducts(ctx, indices, deleteRemote)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	for _, p := range res.Deleted {
		fmt.Printf("  • %s\n", p.Label())
	}
	fmt.Println()
	color.Green("  ✓ Deleted %d products locally", len(res.Deleted))
	if deleteRemote {
		color.Green("  ✓ Deleted %d products in Shopify", res.RemoteDeleted)
		for _, e := range res.RemoteErrors {
			color.Red("  ✗ #%d %s: %s", e.ProductIndex, e.Product, e.Message)
		}
	}
	fmt.Println()
	return nil
}

func runProductsSearch(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	hits, err := orch.Catalog().Search(query, catalog.SearchFilter{Field: searchField, Value: searchValue})
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	printHeader(fmt.Sprintf("SEARCH %q", query))
	if len(hits) == 0 {
		color.Yellow("  No matching products")
		fmt.Println()
		return nil
	}

	table := newTable("#", "Shopify ID", "Title", "Status", "Category")
	for _, h := range hits {
		appendProductRow(table, h.Index, h.Product)
	}
	table.Render()
	fmt.Println()
	color.Green("  ✓ %d matches", len(hits))
	fmt.Println()
	return nil
}

func runProductsImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	printHeader("IMPORTING PRODUCTS")

	if _, err := os.Stat(args[0]); os.IsNotExist(err) {
		color.Red("  Error: File not found: %s", args[0])
		return fmt.Errorf("file not found: %s", args[0])
	}

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	color.Yellow("  Source: %s\n\n", args[0])
	res, err := orch.Import(ctx, args[0], catalog.ImportOptions{Replace: importReplace})
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	color.Green("  ✓ Imported %d of %d rows", res.Added, res.Total)
	if res.Skipped > 0 {
		color.Yellow("  ⚠ %d rows skipped as duplicates", res.Skipped)
	}
	if len(res.NewFields) > 0 {
		color.Green("  ✓ New custom fields: %s", strings.Join(res.NewFields, ", "))
	}
	fmt.Println()
	return nil
}

func runProductsExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	printHeader("EXPORTING PRODUCTS")

	filters, err := parseAssignments(exportFilters)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := orch.Export(ctx, output.ExportOptions{
		Format:     output.Format(exportFormat),
		OutputPath: exportOutput,
		Filters:    filters,
		OnlyNew:    exportOnlyNew,
		DryRun:     exportDryRun,
	})
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	if exportDryRun {
		color.Yellow("  Dry run: %d products would be exported", res.ProductsExported)
	} else {
		color.Green("  ✓ Exported %d products to %s", res.ProductsExported, res.Destination)
	}
	fmt.Printf("  Took %s\n\n", res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
	return nil
}
