package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/config"
	"github.com/skyroute/booking-core/internal/database"
	"github.com/skyroute/booking-core/internal/metrics"
	"github.com/skyroute/booking-core/internal/services"
)

// release-holds returns lapsed seat holds to inventory and frees seats still
// attached to cancelled bookings. Safe to run while the server is up.
// With -seat it instead frees that one seat and cancels its passenger.
func main() {
	var (
		dbURLFlag string
		batchSize int
		orphans   bool
		seatFlag  string
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&batchSize, "batch-size", 500, "seats released per transaction")
	flag.BoolVar(&orphans, "orphans", true, "also free seats held or booked by cancelled bookings")
	flag.StringVar(&seatFlag, "seat", "", "free this flight seat ID and cancel the passenger on it")
	flag.Parse()

	_ = godotenv.Load()

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

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	seats := services.NewSeatInventoryService(
		database.NewFlightSeatRepository(db),
		services.SeatInventoryConfig{HoldWindow: 15 * time.Minute, SweepBatchSize: batchSize},
		metrics.NewNopMetrics(),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if seatFlag != "" {
		seatID, err := uuid.Parse(seatFlag)
		if err != nil {
			log.Fatalf("invalid -seat: %v", err)
		}
		if err := seats.Release(ctx, seatID); err != nil {
			log.Fatalf("failed to release seat: %v", err)
		}
		fmt.Printf("Released seat %s\n", seatID)
		return
	}

	released, err := seats.ExpireStaleHolds(ctx, time.Now())
	if err != nil {
		log.Fatalf("failed to release expired holds: %v", err)
	}
	fmt.Printf("Released %d expired seat holds\n", released)

	if orphans {
		freed, err := seats.ReleaseOrphanedSeats(ctx)
		if err != nil {
			log.Fatalf("failed to release orphaned seats: %v", err)
		}
		fmt.Printf("Freed %d seats held by cancelled bookings\n", freed)
	}
}
