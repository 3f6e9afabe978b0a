package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"sqabi/backend/internal/session/domain"
)

// ErrDuplicateToken is returned by MemoryRepository.Rotate when the token is already stored.
var ErrDuplicateToken = errors.New("session: duplicate local token")

// MemoryRepository is an in-process Repository used as a test double for the gate, service and router.
// Rotate holds the lock for the whole invalidate-then-insert step, matching the Postgres transaction.
type MemoryRepository struct {
	mu      sync.RWMutex
	byToken map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byToken: make(map[string]*domain.Session)}
}

func (m *MemoryRepository) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byToken[token]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) ListActiveByUser(_ context.Context, userID string) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Session
	for _, s := range m.byToken {
		if s.UserID == userID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Rotate(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byToken[s.LocalToken]; exists {
		return ErrDuplicateToken
	}
	now := time.Now().UTC()
	m.invalidateLocked(func(x *domain.Session) bool { return x.UserID == s.UserID }, domain.LogoutNewLogin, now)
	cp := *s
	cp.IsActive = true
	cp.UpdatedAt = cp.CreatedAt
	m.byToken[s.LocalToken] = &cp
	return nil
}

func (m *MemoryRepository) InvalidateByToken(_ context.Context, token string, reason domain.LogoutReason) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.invalidateLocked(func(x *domain.Session) bool { return x.LocalToken == token }, reason, time.Now().UTC())
	return n > 0, nil
}

func (m *MemoryRepository) InvalidateByID(_ context.Context, id string, reason domain.LogoutReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked(func(x *domain.Session) bool { return x.ID == id }, reason, time.Now().UTC())
	return nil
}

func (m *MemoryRepository) InvalidateAllByUser(_ context.Context, userID string, reason domain.LogoutReason) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidateLocked(func(x *domain.Session) bool { return x.UserID == userID }, reason, time.Now().UTC()), nil
}

func (m *MemoryRepository) TouchActivity(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byToken {
		if s.ID == id {
			s.LastActivity = at
			s.UpdatedAt = at
		}
	}
	return nil
}

func (m *MemoryRepository) MarkHubChecked(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byToken {
		if s.ID == id {
			t := at
			s.LastHubCheck = &t
			s.LastActivity = at
			s.UpdatedAt = at
		}
	}
	return nil
}

// invalidateLocked deactivates matching active sessions. Caller must hold m.mu.
func (m *MemoryRepository) invalidateLocked(match func(*domain.Session) bool, reason domain.LogoutReason, now time.Time) int64 {
	var n int64
	for _, s := range m.byToken {
		if s.IsActive && match(s) {
			t := now
			s.IsActive = false
			s.LogoutAt = &t
			s.LogoutReason = reason
			s.UpdatedAt = now
			n++
		}
	}
	return n
}
