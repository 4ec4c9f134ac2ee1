package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HoldExpirationService returns lapsed seat holds to inventory on a fixed interval
type HoldExpirationService struct {
	seats    *SeatInventoryService
	logger   *logrus.Logger
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHoldExpirationService creates a new hold expiration service
func NewHoldExpirationService(seats *SeatInventoryService, interval time.Duration, logger *logrus.Logger) *HoldExpirationService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HoldExpirationService{
		seats:    seats,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep
func (s *HoldExpirationService) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting seat hold expiration service")
	go s.run()
}

// Stop ends the background sweep and waits for the current pass to finish
func (s *HoldExpirationService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		s.logger.Info("Seat hold expiration service stopped")
	})
}

func (s *HoldExpirationService) run() {
	defer close(s.done)

	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce runs a single sweep and returns how many seats were released
func (s *HoldExpirationService) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	released, err := s.seats.ExpireStaleHolds(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to release expired seat holds")
	}
	return released
}
