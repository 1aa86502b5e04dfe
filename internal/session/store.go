// Package session keeps wizard controllers in memory, keyed by session id,
// and expires idle ones.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/logging"
	"github.com/KaramelBytes/stagewise/internal/metrics"
	"github.com/KaramelBytes/stagewise/internal/wizard"
)

const closeTimeout = 5 * time.Second

// Factory builds the controller for a new session id.
type Factory func(id string) *wizard.Controller

// Store is a TTL cache of controllers. Every Get extends the session's life.
type Store struct {
	cache   *cache.Cache
	newCtrl Factory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewStore creates a store whose sessions expire after ttl without access.
func NewStore(ttl time.Duration, newCtrl Factory, logger *zap.Logger, m *metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	s := &Store{
		cache:   cache.New(ttl, cleanup),
		newCtrl: newCtrl,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
	s.cache.OnEvicted(s.evicted)
	return s
}

// Create opens a new session.
func (s *Store) Create() *wizard.Controller {
	id := uuid.NewString()
	ctrl := s.newCtrl(id)
	s.cache.Set(id, ctrl, cache.DefaultExpiration)
	s.metrics.SessionOpened()
	s.logger.Debug("session created", zap.String("session", id))
	return ctrl
}

// Get returns the session and refreshes its expiry. Replace only succeeds
// while the item is still live, so a session evicted between the lookup and
// the refresh stays gone.
func (s *Store) Get(id string) (*wizard.Controller, bool) {
	x, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	ctrl := x.(*wizard.Controller)
	if err := s.cache.Replace(id, ctrl, cache.DefaultExpiration); err != nil {
		return nil, false
	}
	return ctrl, true
}

// Delete drops a session, cancelling any submission it has in flight.
func (s *Store) Delete(id string) bool {
	if _, found := s.cache.Get(id); !found {
		return false
	}
	s.cache.Delete(id)
	return true
}

// Len reports the number of live sessions, including expired ones not yet purged.
func (s *Store) Len() int { return s.cache.ItemCount() }

// Close shuts every session down and empties the store.
func (s *Store) Close(ctx context.Context) error {
	var firstErr error
	for id, item := range s.cache.Items() {
		ctrl := item.Object.(*wizard.Controller)
		if err := ctrl.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		s.cache.Delete(id)
	}
	return firstErr
}

func (s *Store) evicted(id string, v interface{}) {
	s.metrics.SessionClosed()
	ctrl, ok := v.(*wizard.Controller)
	if !ok {
		return
	}
	s.logger.Debug("session closed", zap.String("session", id))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := ctrl.Close(ctx); err != nil {
			s.logger.Warn("session did not shut down cleanly", zap.String("session", id), zap.Error(err))
		}
	}()
}
