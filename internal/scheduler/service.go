// Package scheduler runs a job on a fixed cadence under a run lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/runlock"
)

const defaultInterval = time.Hour

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// ServiceParams configure the scheduler service.
type ServiceParams struct {
	Logger   zerolog.Logger
	Lock     runlock.Lock
	Job      Job
	Interval time.Duration
}

// Service executes its job immediately and then on every tick.
type Service struct {
	log      zerolog.Logger
	lock     runlock.Lock
	job      Job
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	if params.Job == nil {
		return nil, errors.New("job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		log:      params.Logger,
		lock:     params.Lock,
		job:      params.Job,
		interval: interval,
	}, nil
}

// Run starts the loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled run failed")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler context canceled")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("scheduled run failed")
			}
		}
	}
}

// RunOnce runs the job if the lock is free. ran is false when another run holds the lock.
func (s *Service) RunOnce(ctx context.Context) (ran bool, err error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.log.Info().Msg("another run is in progress; skipping this cycle")
		return false, nil
	}
	defer func() {
		// A canceled run must still free the lock.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if relErr := s.lock.Release(releaseCtx); relErr != nil {
			s.log.Error().Err(relErr).Msg("failed to release run lock")
		}
	}()

	start := time.Now()
	s.log.Info().Msg("scheduled run starting")
	if err := s.job(ctx); err != nil {
		s.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled run finished with errors")
		return true, err
	}
	s.log.Info().Dur("duration", time.Since(start)).Msg("scheduled run complete")
	return true, nil
}
