package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"
)

const numWorkers = 5

// SimulateActivities runs the send and read loops until ctx ends.
func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runLoop(ctx, s.config.MessageFrequency, s.sendMessage)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runLoop(ctx, s.config.ReadFrequency, s.readHistory)
	}()

	wg.Wait()
}

// runLoop offers every user to a worker pool each tick; a worker acts with
// the per-tick probability derived from perHour.
func (s *EnhancedSimulator) runLoop(ctx context.Context, perHour float64, act func(context.Context, *SimulatedUser) error) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	p := perHour / 3600.0 * s.config.TickInterval.Seconds()
	jobs := make(chan *SimulatedUser, len(s.config.UserIDs))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				if !s.chance(p) {
					continue
				}
				if err := act(ctx, user); err != nil && ctx.Err() == nil {
					s.logger.Debug().Err(err).Str("user", user.ID).Msg("activity failed")
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, user := range s.users {
				select {
				case jobs <- user:
				default: // Don't block if channel is full
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *EnhancedSimulator) sendMessage(ctx context.Context, user *SimulatedUser) error {
	receiver := s.pickPartner(user.ID)
	data := map[string]string{
		"sender":   user.ID,
		"receiver": receiver,
		"content":  fmt.Sprintf("hello %s from %s at %s", receiver, user.ID, time.Now().Format(time.RFC3339Nano)),
	}
	if _, err := s.makeRequest(ctx, "POST", "/chats/send", "", data); err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.MessagesSent++
	s.stats.mu.Unlock()
	return nil
}

// readHistory opens the first page of a conversation, which marks it read
// and triggers receipts toward the other side.
func (s *EnhancedSimulator) readHistory(ctx context.Context, user *SimulatedUser) error {
	other := s.pickPartner(user.ID)
	query := url.Values{}
	query.Set("sender", user.ID)
	query.Set("receiver", other)
	query.Set("page", "1")
	query.Set("limit", "20")

	if _, err := s.makeRequest(ctx, "GET", "/messages?"+query.Encode(), user.Token, nil); err != nil {
		return err
	}

	s.stats.mu.Lock()
	s.stats.HistoryReads++
	s.stats.mu.Unlock()
	return nil
}

// pickPartner chooses another user, skewed toward popular ones by a Zipf
// distribution over the user list.
func (s *EnhancedSimulator) pickPartner(self string) string {
	ids := s.config.UserIDs

	s.rngMu.Lock()
	idx := int(rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(len(ids)-1)).Uint64())
	s.rngMu.Unlock()

	if ids[idx] == self {
		idx = (idx + 1) % len(ids)
	}
	return ids[idx]
}
