package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/badno/pimsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, inspect and edit the pimsync config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults",
	Long:  `Writes the default settings to the config path. An existing file is left untouched.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings and credential status",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Change one setting in the config file",
	Example: "  pimsync config set sync.batch_size 50\n  pimsync config set sync.business_keys sku,handle",
	Args:    cobra.ExactArgs(2),
	RunE:    runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:     "get <key>",
	Short:   "Print one effective setting",
	Example: "  pimsync config get remote.store",
	Args:    cobra.ExactArgs(1),
	RunE:    runConfigGet,
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd, configSetCmd, configGetCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if config.Exists(path) {
		color.Yellow("  %s already exists, nothing written", path)
		return nil
	}
	if err := config.InitAt(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	color.Green("  ✓ Wrote %s", path)

	defaults := config.DefaultConfig()
	fmt.Println()
	fmt.Println("  Before the first push:")
	fmt.Printf("    export %s=<admin api token>\n", defaults.Remote.APIKeyEnv)
	fmt.Println("    pimsync config set remote.store <shop name>")
	fmt.Println("    pimsync config set sync.live true")
	fmt.Println()
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printHeader("SETTINGS")
	path, _ := resolveConfigPath()
	source := "built-in defaults"
	if config.Exists(path) {
		source = path
	}
	printFields("Source", source)
	fmt.Println()

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		fmt.Println("  " + line)
	}
	fmt.Println()

	printHeader("CREDENTIALS")
	table := newTable("Purpose", "Variable", "Status")
	credentials := [][2]string{
		{"Shopify access token", cfg.Remote.APIKeyEnv},
		{"PostgreSQL user", cfg.Database.Postgres.UsernameEnv},
		{"PostgreSQL password", cfg.Database.Postgres.PasswordEnv},
		{"ClickHouse user", cfg.Database.ClickHouse.UsernameEnv},
		{"ClickHouse password", cfg.Database.ClickHouse.PasswordEnv},
	}
	for _, c := range credentials {
		if c[1] == "" {
			continue
		}
		status := color.RedString("missing")
		if _, ok := os.LookupEnv(c[1]); ok {
			status = color.GreenString("present")
		}
		table.Append([]string{c[0], c[1], status})
	}
	table.Render()
	fmt.Println()
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := config.SaveTo(cfg, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	color.Green("  ✓ %s = %s", args[0], args[1])
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}
