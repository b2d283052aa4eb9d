package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"expense-tracker/internal/backend"
	"expense-tracker/internal/config"
	"expense-tracker/internal/domain"
	"expense-tracker/internal/service"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/storage/jsonfile"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type cli struct {
	out     io.Writer
	cfg     config.Config
	logger  *slog.Logger
	backend string
	dataDir string
	verbose bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "expensectl",
		Short:         "Maintenance tasks for the expense tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "storage backend, overrides DATA_BACKEND")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "JSON data directory, overrides DATA_DIR")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.migrateCategoriesCmd(),
		c.importJSONCmd(),
		c.resetPasswordCmd(),
		c.deleteUserCmd(),
		c.setRoleCmd(),
		c.verifyUserCmd(),
		c.resetDataCmd(),
	)
	return root
}

func (c *cli) load() error {
	_ = godotenv.Load()
	c.cfg = config.Load()
	if c.backend != "" {
		c.cfg.DataBackend = c.backend
	}
	if c.dataDir != "" {
		c.cfg.DataDir = c.dataDir
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	level := c.cfg.SlogLevel()
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)
	return nil
}

// withStore opens the configured backend for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(storage.Store) error) error {
	res, err := backend.NewFactory(c.logger).CreateBackend(ctx, backend.ConfigFromAppConfig(c.cfg))
	if err != nil {
		return err
	}
	defer res.Cleanup()
	return fn(res.Store)
}

func (c *cli) migrateCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-categories",
		Short: "Rename the legacy Transport category to Travelling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				n, err := service.MigrateLegacyCategories(cmd.Context(), store)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Updated %d expenses from %s to %s\n", n, domain.LegacyCategoryTransport, domain.CategoryTravelling)
				return nil
			})
		},
	}
}

func (c *cli) importJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-json <dir>",
		Short: "Copy users, expenses and budgets from JSON files into the configured backend",
		Long: "Reads users.json, expenses.json and budgets.json from <dir> and copies them into\n" +
			"the configured backend. The target must not have any users yet.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := jsonfile.New(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			return c.withStore(cmd.Context(), func(dst storage.Store) error {
				report, err := service.ImportData(cmd.Context(), src, dst)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Imported %d users, %d expenses, %d budgets into %s\n",
					report.Users, report.Expenses, report.Budgets, dst.Name())
				if report.SkippedExpenses > 0 {
					fmt.Fprintf(c.out, "Skipped %d expenses without an owner\n", report.SkippedExpenses)
				}
				return nil
			})
		},
	}
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				svc := service.NewAuthService(store, store, nil, nil, service.AuthConfig{}, service.Clock{})
				if err := svc.ResetPassword(cmd.Context(), service.ResetPasswordInput{Email: args[0], NewPassword: password}); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Password reset for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (at least 6 characters)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) deleteUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <email>",
		Short: "Delete a user together with their expenses and budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				u, err := service.NewAdminService(store).DeleteUserByEmail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Deleted user %s (%s, id %s)\n", u.Email, u.Name, u.ID)
				return nil
			})
		},
	}
}

func (c *cli) setRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-role <email> <user|admin>",
		Short:     "Change a user's role",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(domain.RoleUser), string(domain.RoleAdmin)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				u, err := service.NewAdminService(store).SetRole(cmd.Context(), args[0], domain.Role(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%s is now %s\n", u.Email, u.Role)
				return nil
			})
		},
	}
}

func (c *cli) verifyUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-user <email>",
		Short: "Mark a user's email as verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store storage.Store) error {
				u, err := service.NewAdminService(store).VerifyUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Verified %s\n", u.Email)
				return nil
			})
		},
	}
}

func (c *cli) resetDataCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-data",
		Short: "Erase all users, expenses and budgets of the JSON backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.DataBackend != config.BackendJSON {
				return fmt.Errorf("reset-data only supports the %s backend, not %s", config.BackendJSON, c.cfg.DataBackend)
			}
			if !yes {
				return fmt.Errorf("refusing to erase %s without --yes", c.cfg.DataDir)
			}
			store, err := jsonfile.New(c.cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "All data cleared in %s\n", c.cfg.DataDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm erasing all data")
	return cmd
}
