package messaging

import (
	"context"
	"errors"
)

// Start refreshes the chat list now and then every poll interval until
// Stop, Detach or ctx cancellation. Calling Start while polling is a no-op.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == 0 {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if s.pollCancel != nil {
		s.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.pollCancel, s.pollDone = cancel, done
	s.mu.Unlock()

	go s.poll(pollCtx, done)
	return nil
}

// Stop ends polling and waits for the poll loop to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done := s.pollCancel, s.pollDone
	s.pollCancel, s.pollDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Polling reports whether the poll loop is running.
func (s *Synchronizer) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCancel != nil
}

func (s *Synchronizer) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.log.Debug().Dur("interval", s.pollInterval).Msg("Polling started")
	s.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("Polling stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Synchronizer) pollOnce(ctx context.Context) {
	err := s.RefreshChats(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrSessionChanged) {
		s.log.Debug().Err(err).Msg("Poll failed")
	}
}
