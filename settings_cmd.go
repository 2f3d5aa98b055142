package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pushrelay/settings"
)

func newSettingsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change stored settings",
		Long: `Settings reads and writes settings.json directly. Changes that need the
desktop (launch on startup, window state) take effect the next time
"pushrelay run" starts.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every setting with its current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(root, func(reg *settings.Registry) error {
				return listSettings(cmd.OutOrStdout(), reg)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(root, func(reg *settings.Registry) error {
				v, err := reg.Get(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting; the value is JSON or a bare string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(root, func(reg *settings.Registry) error {
				if err := reg.Set(args[0], parseValue(args[1])); err != nil {
					return err
				}
				v, err := reg.Get(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset-legacy",
		Short: "Remove keys no current setting owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(root, func(reg *settings.Registry) error {
				removed, err := reg.RemoveLegacy()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(removed) == 0 {
					fmt.Fprintln(out, "No legacy settings.")
					return nil
				}
				for _, key := range removed {
					fmt.Fprintln(out, key)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), settings.DefaultPath())
		},
	})

	return cmd
}

// withRegistry opens the settings file without a desktop attached and
// saves it once fn returns.
func withRegistry(root *rootOptions, fn func(reg *settings.Registry) error) error {
	store := settings.OpenFileStore(settings.DefaultPath(), root.logger.Named("settings"))
	reg, err := settings.NewRegistry(store, settings.DefaultEntries(settings.DefaultEnv(appName, version)), settings.Options{
		Logger: root.logger.Named("settings"),
	})
	if err != nil {
		return err
	}
	err = fn(reg)
	if cerr := reg.Close(); err == nil {
		err = cerr
	}
	return err
}

func listSettings(out io.Writer, reg *settings.Registry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, key := range reg.Keys() {
		v, err := reg.Get(key)
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", key, data)
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// parseValue reads arg as JSON, falling back to the literal string.
func parseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}
