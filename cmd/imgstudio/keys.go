package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manash/imgstudio/internal/keys"
	"github.com/manash/imgstudio/pkg/models"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored provider API keys",
	}

	cmd.AddCommand(
		newKeysSetCmd(app),
		newKeysGetCmd(app),
		newKeysDeleteCmd(app),
		newKeysListCmd(app),
	)
	return cmd
}

func parseProvider(name string) (models.ProviderType, error) {
	p := models.ProviderType(name)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown provider %q (valid: %v)", name, models.ValidProviders())
	}
	return p, nil
}

func newKeysSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			if err := store.Set(string(p), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored %s key %s in %s\n", p, keys.MaskKey(args[1]), store.Path())
			return nil
		},
	}
}

func newKeysGetCmd(app *App) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "get <provider>",
		Short: "Print a stored API key (masked unless --show)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			key, err := store.Get(string(p))
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("no key found for %s", p)
			}
			if !show {
				key = keys.MaskKey(key)
			}
			fmt.Fprintln(app.Out, key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the full key")

	return cmd
}

func newKeysDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <provider>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored API key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			if err := store.Delete(string(p)); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s key\n", p)
			return nil
		},
	}
}

func newKeysListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List providers with a stored key",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			providers, err := store.List()
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				fmt.Fprintln(app.Out, "No stored keys.")
				return nil
			}
			for _, p := range providers {
				key, err := store.Get(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "%-10s %s\n", p, keys.MaskKey(key))
			}
			return nil
		},
	}
}
