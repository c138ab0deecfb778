package service

import (
	"context"
	"time"

	"rally/pkg/config"
)

// RegistrationSweeper drives registration-window closes on a timer.
type RegistrationSweeper struct {
	tournaments TournamentService
	cfg         *config.Config
}

func NewRegistrationSweeper(tournaments TournamentService, cfg *config.Config) *RegistrationSweeper {
	return &RegistrationSweeper{tournaments: tournaments, cfg: cfg}
}

func (s *RegistrationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.cfg.Log.Info("Registration sweeper started", "interval", s.cfg.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			s.cfg.Log.Info("Registration sweeper stopped")
			return
		case <-ticker.C:
			if err := s.tournaments.SweepRegistrationWindows(ctx); err != nil {
				s.cfg.Log.Error("Registration window sweep failed", "error", err)
			}
		}
	}
}
