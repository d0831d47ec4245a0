package main

import (
	"fmt"
	"os"
	"path/filepath"

	"kasbot/internal/config"
	"kasbot/internal/i18n"

	"github.com/spf13/cobra"
)

func configInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	localePath, _ := cmd.Flags().GetString("locale")
	out := cmd.OutOrStdout()

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	defaults := config.DefaultConfig()
	if localePath != "" {
		if err := os.MkdirAll(filepath.Dir(localePath), 0755); err != nil {
			return fmt.Errorf("failed to create dictionary directory: %w", err)
		}
		if err := os.WriteFile(localePath, i18n.DefaultYAML(), 0644); err != nil {
			return fmt.Errorf("failed to write dictionary: %w", err)
		}
		defaults.Locale.File = localePath
		fmt.Fprintln(out, successStyle.Render("Wrote dictionary"), localePath)
	}

	if err := defaults.Save(configPath); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("Wrote config"), configPath)
	return nil
}
