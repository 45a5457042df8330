package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"authgate/core"
)

// NewPasswordCmd creates the password command group.
func NewPasswordCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password policy and hashing helpers",
	}
	cmd.AddCommand(newPasswordCheckCmd())
	cmd.AddCommand(newPasswordHashCmd(opts))
	return cmd
}

func newPasswordCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <password>",
		Short: "Check a password against the strength policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !core.IsStrongPassword(args[0]) {
				return oops.Code("WEAK_PASSWORD").Errorf("password does not satisfy the policy: at least 8 characters with upper, lower, digit and one of #?!@$%%^&*-")
			}
			cmd.Println("password satisfies the policy")
			return nil
		},
	}
}

func newPasswordHashCmd(opts *rootOptions) *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "hash <password>",
		Short: "Print the stored-form hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if algorithm == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				algorithm = cfg.HashAlgorithm
			}
			hasher, err := core.NewPasswordHasher(algorithm)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(args[0])
			if err != nil {
				return err
			}
			cmd.Println(hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "argon2id or bcrypt (defaults to hash_algorithm from config)")
	return cmd
}
