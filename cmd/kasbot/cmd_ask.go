package main

import (
	"fmt"
	"strings"

	"kasbot/internal/dispatch"
	"kasbot/internal/i18n"

	"github.com/spf13/cobra"
)

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func askMessage(cmd *cobra.Command, args []string) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	catalogs, err := loadDictionary()
	if err != nil {
		return err
	}

	reply := dispatch.New(store, catalogs).Handle(cmd.Context(), joinArgs(args))
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func translateMessage(cmd *cobra.Command, args []string) error {
	catalogs, err := loadDictionary()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	c := dispatch.Translate(catalogs.Catalog(), joinArgs(args))
	if c.IsNone() {
		fmt.Fprintln(out, warningStyle.Render("no command"))
		return nil
	}
	fmt.Fprintln(out, labelStyle.Render("command:"), successStyle.Render(c.Name))
	if len(c.Args) > 0 {
		fmt.Fprintln(out, labelStyle.Render("args:   "), strings.Join(c.Args, " "))
	}
	return nil
}

// loadDictionary loads the configured dictionary, or the embedded one.
func loadDictionary() (*i18n.Store, error) {
	if cfg.Locale.File == "" {
		return i18n.NewStore(nil), nil
	}
	cat, err := i18n.Load(cfg.Locale.File)
	if err != nil {
		return nil, err
	}
	return i18n.NewStore(cat), nil
}
