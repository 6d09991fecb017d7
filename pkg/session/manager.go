package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// InitFunc creates the first session of a conversation.
type InitFunc func(ctx context.Context) (*domain.ConversationSession, error)

// UpdateFunc receives the stored session and returns its replacement.
type UpdateFunc func(ctx context.Context, sess *domain.ConversationSession) (*domain.ConversationSession, error)

// Manager serializes access to conversation sessions so that at most one turn
// per conversation runs at a time. Locks are reference counted and dropped
// once no caller holds them.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker adds a distributed lock around every locked section.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a session manager over the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(conversationID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[conversationID]
	if !exists {
		entry = &lockEntry{}
		m.locks[conversationID] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[conversationID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, conversationID)
	}
}

// Load retrieves a stored session.
func (m *Manager) Load(ctx context.Context, conversationID string) (*domain.ConversationSession, error) {
	var sess *domain.ConversationSession
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		var err error
		sess, err = m.store.Load(ctx, conversationID)
		return err
	})
	return sess, err
}

// LoadOrStart loads a session, creating and saving it with init when missing.
// Concurrent callers for the same id observe a single creation.
func (m *Manager) LoadOrStart(ctx context.Context, conversationID string, init InitFunc) (*domain.ConversationSession, error) {
	var sess *domain.ConversationSession
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		var err error
		sess, err = m.store.Load(ctx, conversationID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		sess, err = init(ctx)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, conversationID, sess); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	return sess, err
}

// Create stores a new session built by init. It fails with
// domain.ErrSessionExists when the id is already taken; the check and the save
// run under one lock.
func (m *Manager) Create(ctx context.Context, conversationID string, init InitFunc) (*domain.ConversationSession, error) {
	var sess *domain.ConversationSession
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, conversationID)
		if err == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, conversationID)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		sess, err = init(ctx)
		if err != nil {
			return err
		}
		if err := m.store.Save(ctx, conversationID, sess); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	return sess, err
}

// Update loads a session, applies fn and saves the result under one lock.
// The session returned by fn is saved even when fn also returns an error.
func (m *Manager) Update(ctx context.Context, conversationID string, fn UpdateFunc) (*domain.ConversationSession, error) {
	var out *domain.ConversationSession
	err := m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, conversationID)
		if err != nil {
			return err
		}

		next, fnErr := fn(ctx, current)
		if next != nil {
			if err := m.store.Save(ctx, conversationID, next); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
		}
		out = next
		return fnErr
	})
	return out, err
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, conversationID string, sess *domain.ConversationSession) error {
	return m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		return m.store.Save(ctx, conversationID, sess)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, conversationID string) error {
	return m.WithLock(ctx, conversationID, func(ctx context.Context) error {
		return m.store.Delete(ctx, conversationID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// WithLock executes fn while holding the lock for the conversation.
func (m *Manager) WithLock(ctx context.Context, conversationID string, fn func(context.Context) error) error {
	entry := m.acquire(conversationID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(conversationID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, conversationID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"conversation_id", conversationID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
