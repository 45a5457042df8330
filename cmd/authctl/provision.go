package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewProvisionCmd creates the provision subcommand.
func NewProvisionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the credential schema",
		Long: `Create the credential table (or key-space marker) in the configured store.
Running it against an already provisioned store is a no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closer, cfg, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()

			logger := commandLogger(cmd, cfg)
			logger.Debug("provisioning credential schema", "driver", cfg.StoreDriver, "table", cfg.TableName)
			if err := store.EnsureSchema(ctx); err != nil {
				return oops.Code("PROVISION_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
			}

			cmd.Printf("credential schema ready (driver=%s table=%s)\n", cfg.StoreDriver, cfg.TableName)
			return nil
		},
	}
}
