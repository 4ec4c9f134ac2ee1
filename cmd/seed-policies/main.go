package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/skyroute/booking-core/internal/config"
	"github.com/skyroute/booking-core/internal/database"
)

// seed-policies loads the cancellation policy YAML into cancellation_policies.
// Tiers are upserted by name; with -prune, tiers missing from the file are deactivated.
func main() {
	var (
		dbURLFlag string
		file      string
		prune     bool
		dryRun    bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&file, "file", "", "policy YAML file (overrides POLICY_SEED_FILE)")
	flag.BoolVar(&prune, "prune", false, "deactivate active policies not present in the file")
	flag.BoolVar(&dryRun, "dry-run", false, "validate and print the policies without writing")
	flag.Parse()

	_ = godotenv.Load()

	if file == "" {
		file = os.Getenv("POLICY_SEED_FILE")
	}
	if file == "" {
		file = "configs/cancellation_policies.yaml"
	}

	policies, err := config.LoadPolicySeed(file)
	if err != nil {
		log.Fatalf("invalid policy file %s: %v", file, err)
	}
	if len(policies) == 0 {
		log.Fatalf("policy file %s defines no policies", file)
	}

	for _, p := range policies {
		fmt.Printf("  %-12s >= %4dh  refund %s%%  fee %s  active=%t\n",
			p.Name, p.HoursBeforeDeparture, p.RefundPercentage.String(), p.CancellationFee.StringFixed(2), p.IsActive)
	}
	if dryRun {
		fmt.Println("Dry run, nothing written.")
		return
	}

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo := database.NewRefundRepository(db)
	names := make([]string, 0, len(policies))
	for i := range policies {
		if err := repo.UpsertPolicy(ctx, &policies[i]); err != nil {
			log.Fatalf("failed to upsert policy %q: %v", policies[i].Name, err)
		}
		names = append(names, policies[i].Name)
	}
	fmt.Printf("Upserted %d policies\n", len(policies))

	if prune {
		n, err := repo.DeactivatePoliciesExcept(ctx, names)
		if err != nil {
			log.Fatalf("failed to deactivate stale policies: %v", err)
		}
		fmt.Printf("Deactivated %d policies not in %s\n", n, file)
	}
}
