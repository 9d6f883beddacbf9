package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher is the part of the Coordinator the RefreshService drives.
type Refresher interface {
	PeriodicRefresh() bool
}

// RefreshService reloads both device lists at a fixed interval.
type RefreshService struct {
	Interval  time.Duration
	Refresher Refresher
	Logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefreshService initializes a new RefreshService.
func NewRefreshService(interval time.Duration, refresher Refresher, logger zerolog.Logger) *RefreshService {
	return &RefreshService{
		Interval:  interval,
		Refresher: refresher,
		Logger:    logger,
	}
}

// Start launches the refresh loop in a separate goroutine.
func (r *RefreshService) Start() error {
	if r.ctx != nil {
		r.Logger.Warn().Msg("RefreshService is already running")
		return errors.New("refresh service is already running")
	}
	if r.Interval <= 0 {
		return errors.New("refresh interval must be positive")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runRefreshLoop()
	}()

	r.Logger.Info().Dur("interval", r.Interval).Msg("RefreshService started successfully")
	return nil
}

// Stop gracefully stops the refresh loop.
func (r *RefreshService) Stop() error {
	if r.ctx == nil {
		r.Logger.Warn().Msg("RefreshService is not running")
		return errors.New("refresh service is not running")
	}

	r.cancel()
	r.wg.Wait()

	r.ctx = nil
	r.cancel = nil

	r.Logger.Info().Msg("RefreshService stopped successfully")
	return nil
}

func (r *RefreshService) runRefreshLoop() {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if r.Refresher.PeriodicRefresh() {
				r.Logger.Debug().Msg("Periodic refresh scheduled")
			}
		case <-r.ctx.Done():
			r.Logger.Info().Msg("RefreshService stopping gracefully")
			return
		}
	}
}
