package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/config"
	"github.com/skyroute/booking-core/internal/models"
)

// FlightSource is the authoritative flight catalog
type FlightSource interface {
	GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error)
	ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error)
}

// FlightCache is a read-through Redis cache for flight records. Seat
// inventory is contended state and always bypasses the cache.
type FlightCache struct {
	client    *redis.Client
	source    FlightSource
	flightTTL time.Duration
	logger    *logrus.Logger
}

// NewRedisClient builds a client from config
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewFlightCache wraps source with a Redis cache
func NewFlightCache(client *redis.Client, source FlightSource, flightTTL time.Duration, logger *logrus.Logger) *FlightCache {
	return &FlightCache{
		client:    client,
		source:    source,
		flightTTL: flightTTL,
		logger:    logger,
	}
}

// GetFlight serves from Redis when possible. Redis failures fall through to
// the source so the cache can never take bookings down.
func (c *FlightCache) GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error) {
	data, err := c.client.Get(ctx, flightKey(id)).Bytes()
	switch {
	case err == nil:
		var flight models.Flight
		if jsonErr := json.Unmarshal(data, &flight); jsonErr == nil {
			return &flight, nil
		}
		c.logger.WithField("flight_id", id).Warn("Discarding undecodable cached flight")
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).Warn("Flight cache read failed")
	}

	flight, err := c.source.GetFlight(ctx, id)
	if err != nil || flight == nil {
		return flight, err
	}

	if err := c.setFlight(ctx, flight); err != nil {
		c.logger.WithError(err).Warn("Flight cache write failed")
	}
	return flight, nil
}

// ListFlightSeats always reads the source
func (c *FlightCache) ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error) {
	return c.source.ListFlightSeats(ctx, flightID)
}

func (c *FlightCache) setFlight(ctx context.Context, flight *models.Flight) error {
	payload, err := json.Marshal(flight)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightKey(flight.ID), payload, c.flightTTL).Err()
}

func flightKey(id uuid.UUID) string {
	return fmt.Sprintf("cache:flight:%s", id)
}
