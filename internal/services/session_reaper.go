package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type staleReaper interface {
	ReapStale(ctx context.Context, before time.Time) (int, error)
}

// SessionReaper completes sessions left open by connections that never
// disconnected cleanly, e.g. after a process crash.
type SessionReaper struct {
	target     staleReaper
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
	stopChan   chan struct{}
}

func NewSessionReaper(target staleReaper, staleAfter, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		target:     target,
		staleAfter: staleAfter,
		interval:   interval,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
}

func (s *SessionReaper) Start() {
	if s.target == nil || s.interval <= 0 {
		return
	}
	go s.loop()
	log.Info().Dur("interval", s.interval).Dur("stale_after", s.staleAfter).Msg("Session reaper started")
}

func (s *SessionReaper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *SessionReaper) loop() {
	// Run on startup as well as by interval.
	s.runOnce(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(context.Background())
		}
	}
}

func (s *SessionReaper) cutoff() time.Time {
	return s.now().UTC().Add(-s.staleAfter)
}

func (s *SessionReaper) runOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := s.target.ReapStale(ctx, s.cutoff())
	if err != nil {
		log.Error().Err(err).Msg("Session reaper run failed")
		return 0
	}
	if n > 0 {
		log.Info().Int("reaped", n).Msg("Completed stale study sessions")
	}
	return n
}
