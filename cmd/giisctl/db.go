package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/giisexport/internal/catalog"
	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/seal"
	"github.com/JonMunkholm/giisexport/internal/store"
)

func databaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	for _, name := range []string{"DATABASE_URL", "DB_URL"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no database: pass --database-url or set DATABASE_URL")
}

func connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func migrateCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the export tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(dbURL)
			if err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dbURL, "database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	return cmd
}

func seedCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load tenants and clinical records from a fixtures file into PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fixtures, err := store.ParseFixtures(data)
			if err != nil {
				return err
			}

			url, err := databaseURL(dbURL)
			if err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			if err := store.NewPostgres(pool).Seed(cmd.Context(), fixtures); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tenant(s)\n", len(fixtures.Tenants))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbURL, "database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	return cmd
}

func prevalidateCmd() *cobra.Command {
	var (
		fixturesFile string
		catalogFile  string
		schemaDir    string
		guides       []string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "prevalidate <tenant-id> <YYYY-MM>",
		Short: "Validate a tenant's period from a fixtures file without writing anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := core.ParsePeriod(args[1])
			if err != nil {
				return err
			}

			svc, err := offlineService(cmd.Context(), fixturesFile, catalogFile, schemaDir)
			if err != nil {
				return err
			}
			pv, err := svc.PreValidate(cmd.Context(), args[0], period, guides)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(pv)
			}
			printPreValidation(cmd, pv)
			return nil
		},
	}
	cmd.Flags().StringVarP(&fixturesFile, "fixtures", "f", "", "Fixtures YAML with the tenant's records")
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "Catalog YAML (default: embedded catalog)")
	cmd.Flags().StringVar(&schemaDir, "schemas", "", "Directory of guide schemas (default: embedded)")
	cmd.Flags().StringSliceVarP(&guides, "guide", "g", nil, "Guides to validate (default: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	_ = cmd.MarkFlagRequired("fixtures")
	return cmd
}

// offlineService builds a Service over an in-memory store seeded from a
// fixtures file. It is only used for pre-validation, which never seals or
// writes, so the key and output directory are placeholders.
func offlineService(ctx context.Context, fixturesFile, catalogFile, schemaDir string) (*core.Service, error) {
	mem := store.NewMemory()
	if err := mem.LoadFixturesFile(fixturesFile); err != nil {
		return nil, err
	}

	var (
		schemas *schema.Registry
		err     error
	)
	if schemaDir != "" {
		schemas, err = schema.LoadDir(schemaDir)
	} else {
		schemas, err = schema.Embedded()
	}
	if err != nil {
		return nil, err
	}

	var cat *catalog.Static
	if catalogFile != "" {
		cat, err = catalog.LoadStaticFile(catalogFile)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, err
	}

	writer, err := core.NewArtifactWriter(os.TempDir())
	if err != nil {
		return nil, err
	}

	return core.NewService(core.Options{
		Schemas: schemas,
		Records: mem,
		Tenants: mem,
		Batches: mem,
		Audit:   mem,
		Writer:  writer,
		Key:     make([]byte, seal.KeySize),
		Catalog: cat,
	})
}

func printPreValidation(cmd *cobra.Command, pv *core.PreValidation) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tenant %s  establishment %s  period %s  status %s\n",
		pv.TenantID, pv.EstablishmentCode, pv.Period, pv.Status)
	for _, g := range pv.Guides {
		fmt.Fprintf(out, "  %-4s rows=%d accepted=%d excluded=%d warnings=%d\n",
			g.Guide, g.Rows, g.Accepted, g.Excluded.TotalExcluded, len(g.Warnings))
		for _, e := range g.Excluded.Entries {
			fmt.Fprintf(out, "       blocker  row %d %s %s: %s\n", e.RowIndex, e.RecordID, e.Field, e.Cause)
		}
		for _, w := range g.Warnings {
			fmt.Fprintf(out, "       warning  row %d %s %s: %s\n", w.RowIndex, w.RecordID, w.Field, w.Cause)
		}
	}
}
