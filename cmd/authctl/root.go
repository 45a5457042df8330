package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"authgate/core"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// NewRootCmd creates the root command for the authctl CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "authctl",
		Short: "Operate the credential store",
		Long: `authctl provisions the credential schema, lists stored credentials
and checks candidate passwords against the password policy.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (defaults to $AUTH_CONFIG)")

	cmd.AddCommand(NewProvisionCmd(opts))
	cmd.AddCommand(NewCredentialsCmd(opts))
	cmd.AddCommand(NewPasswordCmd(opts))

	return cmd
}

func (o *rootOptions) load() (core.Config, error) {
	path := o.configFile
	if path == "" {
		path = core.ConfigPath()
	}
	cfg, err := core.Load(path)
	if err != nil {
		return core.Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	return cfg, nil
}

// openStore loads config and connects the configured backend.
func (o *rootOptions) openStore(ctx context.Context) (core.CredentialStore, io.Closer, core.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, core.Config{}, err
	}
	store, closer, err := core.OpenCredentialStore(ctx, cfg)
	if err != nil {
		return nil, nil, core.Config{}, oops.Code("STORE_OPEN_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
	}
	return store, closer, cfg, nil
}

// commandLogger writes CLI diagnostics to stderr in text form.
func commandLogger(cmd *cobra.Command, cfg core.Config) *slog.Logger {
	cfg.LogFormat = "text"
	return core.NewLogger(cfg, cmd.ErrOrStderr())
}
