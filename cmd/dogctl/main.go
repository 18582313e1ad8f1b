// Command dogctl runs operator tasks against the custody database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/config"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/listing"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/migrations"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

var databaseURL string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dogctl",
		Short:         "Operator tools for the dog custody service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")

	root.AddCommand(newMigrateCmd(), newCreateAdminCmd(), newBucketsCmd(), newRelayOnceCmd())
	return root
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	url := databaseURL
	if url == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		url = cfg.DatabaseURL
	}
	if url == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL or --database-url", config.ErrMissing)
	}
	return db.NewPool(ctx, url, db.PoolOptions{MaxConns: 2})
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(cmd.Context(), pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func newCreateAdminCmd() *cobra.Command {
	var (
		username  string
		firstName string
		lastName  string
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Provision an administrator account",
		Long: `Provision an administrator account. The password is read from
DOGCTL_ADMIN_PASSWORD so it never lands in shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("DOGCTL_ADMIN_PASSWORD")
			if password == "" {
				return fmt.Errorf("%w: DOGCTL_ADMIN_PASSWORD", config.ErrMissing)
			}
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := auth.NewService(auth.NewRepository(pool), "")
			user, err := svc.CreateAdmin(cmd.Context(), auth.RegisterRequest{
				Username:  username,
				Password:  password,
				FirstName: firstName,
				LastName:  lastName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newBucketsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Print how many dogs sit in each listing bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := listing.NewService(dog.NewRepository(pool), ledger.NewRepository(pool))
			counts, err := listing.NewMonitor(svc, nil, obs.Nop(), 0).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printBuckets(cmd.OutOrStdout(), counts, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func printBuckets(w io.Writer, counts map[listing.Bucket]int, asJSON bool) error {
	if asJSON {
		out := make(map[string]int, len(listing.Buckets))
		for _, b := range listing.Buckets {
			out[string(b)] = counts[b]
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tDOGS")
	for _, b := range listing.Buckets {
		fmt.Fprintf(tw, "%s\t%d\n", b, counts[b])
	}
	return tw.Flush()
}

func newRelayOnceCmd() *cobra.Command {
	var maxAttempts int
	cmd := &cobra.Command{
		Use:   "relay-once",
		Short: "Drain one batch of the outbox to the log publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := obs.NewLoggerTo(cmd.ErrOrStderr())
			relay := journal.NewRelay(pool, journal.LogPublisher{Logger: logger}, logger, nil, journal.RelayConfig{MaxAttempts: maxAttempts})
			n, err := relay.DrainOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relayed %d outbox rows\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "attempts before a row is marked dead")
	return cmd
}
