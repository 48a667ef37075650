package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// UserKey is the storage key holding the signed-in user record.
const UserKey = "legalmind_user"

// User is the signed-in user. Token is optional; requests go out
// unauthenticated without it.
type User struct {
	Email    string `json:"email"`
	Language string `json:"language"`
	Token    string `json:"token,omitempty"`
}

// UserStore persists the signed-in user record.
type UserStore struct {
	storage Storage
	logger  *slog.Logger

	mu     sync.RWMutex
	user   *User
	loaded bool
}

func NewUserStore(storage Storage, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &UserStore{storage: storage, logger: logger}
}

// Current returns the signed-in user, if any.
func (s *UserStore) Current() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *UserStore) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	raw, ok, err := s.storage.Get(UserKey)
	if err != nil {
		s.logger.Warn("failed to read user record", "error", err)
		return
	}
	if !ok {
		return
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.Error("failed to parse user record", "error", err)
		return
	}
	s.user = &u
}

// Login records the signed-in user.
func (s *UserStore) Login(u User) error {
	if u.Email == "" {
		return errors.New("email is required")
	}

	data, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "failed to marshal user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
	s.loaded = true
	if err := s.storage.Set(UserKey, string(data)); err != nil {
		return errors.Wrap(err, "failed to persist user")
	}
	s.logger.Info("user logged in", "email", u.Email, "language", u.Language, "has_token", u.Token != "")
	return nil
}

// Logout forgets the signed-in user.
func (s *UserStore) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.loaded = true
	if err := s.storage.Delete(UserKey); err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	s.logger.Info("user logged out")
	return nil
}
