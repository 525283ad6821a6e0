package main

import (
	"context"
	"database/sql"
	"deadkm-service/internal/adapters/cache"
	"deadkm-service/internal/adapters/distance"
	"deadkm-service/internal/adapters/progress"
	"deadkm-service/internal/api/dto"
	"deadkm-service/internal/config"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/platform/db"
	"deadkm-service/internal/services"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// buildCLI assembles:
//
//	deadkmctl migrate   create (or purge) the distance cache schema
//	deadkmctl optimize  run one optimization offline from a request file
func buildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "deadkmctl",
		Short:         "Dead kilometre optimization tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(buildMigrateCommand())
	root.AddCommand(buildOptimizeCommand())
	return root
}

func buildMigrateCommand() *cobra.Command {
	var (
		driver string
		dbPath string
		dbURL  string
		purge  bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the distance cache schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), cmd.OutOrStdout(), driver, dbPath, dbURL, purge)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", config.Get("CACHE_DRIVER", "sqlite"), "cache driver: sqlite or postgres")
	cmd.Flags().StringVar(&dbPath, "db-path", config.Get("DB_PATH", "data/cache.db"), "SQLite database file")
	cmd.Flags().StringVar(&dbURL, "database-url", config.Get("DATABASE_URL", ""), "Postgres connection URL")
	cmd.Flags().BoolVar(&purge, "purge", false, "delete every cached distance after migrating")
	return cmd
}

func migrate(ctx context.Context, out io.Writer, driver, dbPath, dbURL string, purge bool) error {
	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case "sqlite":
		conn, err = db.OpenSqlite(ctx, dbPath)
	case "postgres":
		if dbURL == "" {
			return fmt.Errorf("migrate: --database-url is required for postgres")
		}
		conn, err = db.OpenPostgres(ctx, dbURL)
	default:
		return fmt.Errorf("migrate: unknown driver %q", driver)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Println("Initializing distance cache schema...")
	if err := cache.InitSchema(ctx, conn); err != nil {
		return err
	}
	fmt.Fprintln(out, "Schema ready.")

	if purge {
		n, err := cache.Purge(ctx, conn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Purged %d cached distances.\n", n)
	}
	return nil
}

func buildOptimizeCommand() *cobra.Command {
	var (
		input           string
		speedKmh        float64
		constraintsFile string
		timeout         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a roster from a JSON request file using straight-line distances",
		Long: "Reads an /optimize request body (driver_data, pickup_data, optional distance_matrix\n" +
			"and constraints) and prints the response. Distances are great-circle estimates\n" +
			"unless the file supplies a matrix.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()
			return optimizeOffline(cmd.Context(), f, cmd.OutOrStdout(), speedKmh, constraintsFile, timeout)
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "JSON request file")
	cmd.Flags().Float64Var(&speedKmh, "speed", 30, "average speed (km/h) for duration estimates")
	cmd.Flags().StringVar(&constraintsFile, "constraints", config.Get("CONSTRAINTS_FILE", ""), "YAML constraint defaults")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "task timeout")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func optimizeOffline(ctx context.Context, in io.Reader, out io.Writer, speedKmh float64, constraintsFile string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var req dto.OptimizeRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	defaults := domain.DefaultConstraints()
	if constraintsFile != "" {
		c, err := config.LoadConstraints(constraintsFile)
		if err != nil {
			return err
		}
		defaults = c
	}
	constraints := req.Constraints.Apply(defaults)

	matrix, err := req.DistanceMatrix.ToDomain()
	if err != nil {
		return err
	}

	tracker := services.NewProgressTracker(progress.NewMemoryStore(), services.TrackerOptions{})
	svc := services.NewDeadKMService(distance.NewHaversineProvider(speedKmh), tracker, defaults, timeout, 0)

	res, err := svc.Optimize(ctx, services.OptimizeRequest{
		TaskID:      req.TaskID,
		Drivers:     dto.VehiclesToDomain(req.DriverData),
		Pickups:     dto.VehiclesToDomain(req.PickupData),
		Matrix:      matrix,
		Constraints: &constraints,
	})

	resp := dto.OptimizeResponse{TaskID: res.TaskID}
	if err == nil {
		resp = dto.FromOptimizeOutcome(res)
	} else {
		resp.Error = err.Error()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	return err
}
