package session

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// TokenKey is the storage key holding the session token.
const TokenKey = "legalmind_session_id"

// Identity owns the opaque session token sent with every request.
// The token is created lazily, reused until Clear, and survives restarts when
// the storage is durable. Storage failures degrade to a process-local token.
type Identity struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	token string
}

func NewIdentity(storage Storage, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Identity{storage: storage, logger: logger, now: time.Now}
}

// GetOrCreate returns the token in effect, creating and persisting one if
// none exists yet.
func (i *Identity) GetOrCreate() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.token != "" {
		return i.token
	}

	stored, ok, err := i.storage.Get(TokenKey)
	if err != nil {
		i.logger.Warn("session storage unavailable, using in-memory token", "error", err)
	} else if ok && stored != "" {
		i.token = stored
		i.logger.Info("loaded existing session", "session_id", stored)
		return i.token
	}

	i.token = newToken(i.now())
	if err == nil {
		if err := i.storage.Set(TokenKey, i.token); err != nil {
			i.logger.Warn("failed to persist session token", "error", err)
		}
	}
	i.logger.Info("created new session", "session_id", i.token)
	return i.token
}

// Clear forgets the token both in memory and in storage.
func (i *Identity) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.token = ""
	if err := i.storage.Delete(TokenKey); err != nil {
		i.logger.Warn("failed to delete session token", "error", err)
	}
	i.logger.Info("session cleared")
}

// newToken builds "session-<unix millis>-<7 base36 chars>".
func newToken(now time.Time) string {
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	for len(suffix) < 7 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("session-%d-%s", now.UnixMilli(), suffix[:7])
}
