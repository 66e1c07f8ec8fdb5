package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/config"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/gemini"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
)

// ConnectFunc opens the remote live session for a new client session.
type ConnectFunc func(ctx context.Context) (relay.LiveSession, error)

// Manager tracks all client sessions, enforces the session cap and
// mirrors session metadata into Redis when one is reachable.
type Manager struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
	connect  ConnectFunc
}

// NewManager creates a session manager. Redis is optional: when the ping
// fails the manager runs with the in-memory map only.
func NewManager(cfg *config.Config) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient = nil
	}

	return &Manager{
		sessions: make(map[string]*ClientSession),
		redis:    redisClient,
		config:   cfg,
		connect: func(ctx context.Context) (relay.LiveSession, error) {
			return gemini.Connect(ctx, cfg.GeminiAPIKey)
		},
	}, nil
}

// CreateSession registers a new client session for an accepted
// connection.
func (sm *Manager) CreateSession(ctx context.Context, clientConn *websocket.Conn) (*ClientSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		return nil, fmt.Errorf("maximum sessions reached")
	}

	sessionID := uuid.New().String()
	session := NewClientSession(sessionID, clientConn, sm.connect)

	sm.sessions[sessionID] = session
	sm.mirrorSession(ctx, session)
	return session, nil
}

// sessionState is the metadata blob mirrored to Redis.
type sessionState struct {
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	Status       string `json:"status"`
}

func (sm *Manager) mirrorSession(ctx context.Context, session *ClientSession) {
	if sm.redis == nil {
		return
	}
	state, err := sonic.Marshal(sessionState{
		CreatedAt:    session.CreatedAt.Format(time.RFC3339),
		LastActivity: session.LastActivity.Format(time.RFC3339),
		Status:       "active",
	})
	if err != nil {
		return
	}
	sm.redis.Set(ctx, "session:"+session.ID, state, sm.config.SessionTimeout)
	sm.redis.SAdd(ctx, "active_sessions", session.ID)
}

// GetSession retrieves a session by ID.
func (sm *Manager) GetSession(sessionID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, exists := sm.sessions[sessionID]
	return session, exists
}

// RemoveSession cleans up and removes a session.
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil
	}

	session.Close()
	delete(sm.sessions, sessionID)

	if sm.redis != nil {
		sm.redis.Del(ctx, "session:"+sessionID)
		sm.redis.SRem(ctx, "active_sessions", sessionID)
	}
	return nil
}

// GetActiveSessionCount returns current session count.
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions removes sessions idle past the timeout.
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, session := range sm.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > sm.config.SessionTimeout {
			session.Close()
			delete(sm.sessions, id)

			if sm.redis != nil {
				sm.redis.Del(ctx, "session:"+id)
				sm.redis.SRem(ctx, "active_sessions", id)
			}
		}
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions.
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions.
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, session := range sm.sessions {
		session.Close()
		delete(sm.sessions, id)
	}
	if sm.redis != nil {
		sm.redis.Close()
	}
}
