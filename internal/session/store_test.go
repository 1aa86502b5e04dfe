package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/stagewise/internal/metrics"
	"github.com/KaramelBytes/stagewise/internal/wizard"
)

func newTestStore(ttl time.Duration) *Store {
	return NewStore(ttl, func(id string) *wizard.Controller {
		return wizard.NewController(id, wizard.Options{})
	}, nil, nil)
}

func TestCreateGetDelete(t *testing.T) {
	s := newTestStore(time.Minute)
	ctrl := s.Create()
	require.NotEmpty(t, ctrl.ID())

	got, ok := s.Get(ctrl.ID())
	require.True(t, ok)
	assert.Same(t, ctrl, got)
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Delete(ctrl.ID()))
	assert.False(t, s.Delete(ctrl.ID()))
	_, ok = s.Get(ctrl.ID())
	assert.False(t, ok)
}

func TestSessionsExpire(t *testing.T) {
	s := newTestStore(30 * time.Millisecond)
	ctrl := s.Create()
	time.Sleep(60 * time.Millisecond)
	_, ok := s.Get(ctrl.ID())
	assert.False(t, ok)
}

func TestGetExtendsExpiry(t *testing.T) {
	s := newTestStore(80 * time.Millisecond)
	ctrl := s.Create()
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		_, ok := s.Get(ctrl.ID())
		require.True(t, ok, "iteration %d", i)
	}
}

func TestClose(t *testing.T) {
	s := newTestStore(time.Minute)
	s.Create()
	s.Create()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 0, s.Len())
}

func activeSessions(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "stagewise_active_sessions" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("active_sessions gauge not registered")
	return 0
}

func TestGetDoesNotResurrectDeletedSession(t *testing.T) {
	m := metrics.New()
	s := NewStore(time.Minute, func(id string) *wizard.Controller {
		return wizard.NewController(id, wizard.Options{})
	}, nil, m)

	for i := 0; i < 50; i++ {
		ctrl := s.Create()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Get(ctrl.ID())
			}
		}()
		go func() {
			defer wg.Done()
			s.Delete(ctrl.ID())
		}()
		wg.Wait()
		_, ok := s.Get(ctrl.ID())
		require.False(t, ok, "session %d came back after delete", i)
	}
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, float64(0), activeSessions(t, m))
}
