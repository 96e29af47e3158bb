package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tasvirbox/api/internal/config"
	"tasvirbox/api/internal/repository"
	"tasvirbox/api/internal/service"
)

const reapBatchSize = 500

// Scheduler runs the periodic maintenance sweeps: expired guest uploads
// and failed-login rows past their retention horizon.
type Scheduler struct {
	cron   *cron.Cron
	store  repository.Store
	guests *service.GuestService
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewScheduler(store repository.Store, guests *service.GuestService, cfg *config.AppConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		store:  store,
		guests: guests,
		cfg:    cfg,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 */1 * * *", s.reapGuestUploads); err != nil { // hourly
		return err
	}
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.pruneFailedLogins); err != nil { // daily
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Scheduler) reapGuestUploads() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reaped, err := s.guests.ReapExpired(ctx, reapBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("guest upload reap failed")
		return
	}
	if reaped > 0 {
		s.log.Info().Int("reaped", reaped).Msg("expired guest uploads removed")
	}
}

func (s *Scheduler) pruneFailedLogins() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.Throttle.RetentionAge)
	if err := s.store.Attempts().PruneOlderThan(ctx, cutoff); err != nil {
		s.log.Error().Err(err).Msg("failed login prune failed")
	}
}
