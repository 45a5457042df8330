package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"authgate/core"
)

// NewCredentialsCmd creates the credentials command group.
func NewCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect stored credentials",
	}
	cmd.AddCommand(newCredentialsListCmd(opts))
	return cmd
}

func newCredentialsListCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored usernames",
		Long:  `List every stored credential ordered by username. Password hashes are never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closer, cfg, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()

			records, err := store.ScanAll(ctx)
			if err != nil {
				return oops.Code("LIST_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
			}

			items := make([]core.CredentialListItem, 0, len(records))
			for _, rec := range records {
				items = append(items, core.CredentialListItem{Username: rec.Username, CreatedAt: rec.CreatedAt})
			}
			return writeCredentials(cmd.OutOrStdout(), items, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func writeCredentials(w io.Writer, items []core.CredentialListItem, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(items)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "USERNAME\tCREATED")
		for _, item := range items {
			fmt.Fprintf(tw, "%s\t%s\n", item.Username, item.CreatedAt.UTC().Format(time.RFC3339))
		}
		return tw.Flush()
	default:
		return oops.Code("INVALID_OUTPUT").With("format", format).Errorf("unsupported output format %q", format)
	}
}
