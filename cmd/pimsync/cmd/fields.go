package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/badno/pimsync/internal/categories"
	"github.com/badno/pimsync/pkg/models"
)

var (
	fieldType        string
	fieldDescription string
	fieldRequired    string
	fieldOptions     string
	fieldGroup       string
	fieldListType    string
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Manage category fields",
	Long:  `Create, rename, and delete the category fields that describe products.`,
}

var fieldsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List category fields",
	RunE:  runFieldsList,
}

var fieldsUpsertCmd = &cobra.Command{
	Use:   "upsert [name]",
	Short: "Create or update a field",
	Long:  `Create a field, or update the attributes given as flags on an existing one.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runFieldsUpsert,
}

var fieldsRenameCmd = &cobra.Command{
	Use:   "rename [old] [new]",
	Short: "Rename a field and the product column holding it",
	Args:  cobra.ExactArgs(2),
	RunE:  runFieldsRename,
}

var fieldsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a field and its product column",
	Args:  cobra.ExactArgs(1),
	RunE:  runFieldsDelete,
}

var fieldsAssignGroupsCmd = &cobra.Command{
	Use:   "assign-groups",
	Short: "Fill empty field groups",
	Long:  `Classify every field without a group by its type and name prefix.`,
	RunE:  runFieldsAssignGroups,
}

func init() {
	fieldsListCmd.Flags().StringVar(&fieldListType, "type", "", "Only list fields of this type")

	fieldsUpsertCmd.Flags().StringVar(&fieldType, "type", "", "Field type (custom_field, tag, product_type, vendor)")
	fieldsUpsertCmd.Flags().StringVar(&fieldDescription, "description", "", "Description")
	fieldsUpsertCmd.Flags().StringVar(&fieldRequired, "required", "", "Required (true/false)")
	fieldsUpsertCmd.Flags().StringVar(&fieldOptions, "options", "", "Allowed values, comma separated")
	fieldsUpsertCmd.Flags().StringVar(&fieldGroup, "group", "", "Display group")

	fieldsCmd.AddCommand(fieldsListCmd)
	fieldsCmd.AddCommand(fieldsUpsertCmd)
	fieldsCmd.AddCommand(fieldsRenameCmd)
	fieldsCmd.AddCommand(fieldsDeleteCmd)
	fieldsCmd.AddCommand(fieldsAssignGroupsCmd)
}

func runFieldsList(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	printHeader("CATEGORY FIELDS")

	fields, err := orch.Catalog().LoadFields()
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}

	table := newTable("Type", "Name", "Group", "Required", "Options")
	table.SetColumnColor(
		tablewriter.Colors{tablewriter.FgYellowColor},
		tablewriter.Colors{},
		tablewriter.Colors{},
		tablewriter.Colors{},
		tablewriter.Colors{},
	)

	shown := 0
	for _, f := range fields {
		if fieldListType != "" && f.Type != models.ParseCategoryType(fieldListType) {
			continue
		}
		required := ""
		if f.IsRequired() {
			required = color.GreenString("yes")
		}
		table.Append([]string{string(f.Type), f.Name, f.Group, required, truncate(f.Options, 40)})
		shown++
	}
	table.Render()
	fmt.Println()
	color.Green("  ✓ %d fields", shown)
	fmt.Println()
	return nil
}

func runFieldsUpsert(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	input := models.CategoryField{
		Name:        args[0],
		Description: fieldDescription,
		Required:    fieldRequired,
		Options:     fieldOptions,
		Group:       fieldGroup,
	}
	if fieldType != "" {
		input.Type = models.ParseCategoryType(fieldType)
	}

	f, created, err := orch.Catalog().UpsertField(input)
	if err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	verb := "Updated"
	if created {
		verb = "Created"
	}
	color.Green("  ✓ %s %s field %q (group %s)", verb, f.Type, f.Name, f.Group)
	fmt.Println()
	return nil
}

func runFieldsRename(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Catalog().RenameField(args[0], args[1]); err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	color.Green("  ✓ Renamed %q to %q", args[0], args[1])
	fmt.Println()
	return nil
}

func runFieldsDelete(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Catalog().DeleteField(args[0]); err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	color.Green("  ✓ Deleted %q", args[0])
	fmt.Println()
	return nil
}

func runFieldsAssignGroups(cmd *cobra.Command, args []string) error {
	orch, err := newOrchestrator(cmd.Context())
	if err != nil {
		return err
	}
	defer orch.Close()

	fields, err := orch.Catalog().LoadFields()
	if err != nil {
		return err
	}
	filled := categories.AssignGroups(fields)
	if filled == 0 {
		color.Yellow("  Every field already has a group")
		fmt.Println()
		return nil
	}
	if err := orch.Catalog().SaveFields(fields); err != nil {
		color.Red("  Error: %v", err)
		return err
	}
	color.Green("  ✓ Assigned groups to %d fields", filled)
	fmt.Println()
	return nil
}
