package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

// UserStore is the credential collaborator: it maps a login handle to a
// tenant handle. It persists to <dir>/users.json with the same atomic
// temp-and-rename discipline as tenant documents. Passwords are bcrypt
// hashes, written by the auth layer.
type UserStore struct {
	mu  sync.Mutex
	dir string
}

func NewUserStore(dir string) (*UserStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", store.ErrPersistence, err)
	}
	return &UserStore{dir: dir}, nil
}

func (s *UserStore) path() string {
	return filepath.Join(s.dir, "users.json")
}

func (s *UserStore) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	user.Username = username

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, exists := users[username]; exists {
		return fmt.Errorf("%w: username already taken", store.ErrInvalidInput)
	}
	users[username] = user
	return s.saveLocked(users)
}

func (s *UserStore) FindUser(ctx context.Context, username string) (domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return domain.UserAccount{}, err
	}
	user, ok := users[username]
	if !ok {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) loadLocked() (map[string]domain.UserAccount, error) {
	raw, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return map[string]domain.UserAccount{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read users: %v", store.ErrPersistence, err)
	}

	users := map[string]domain.UserAccount{}
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("%w: decode users: %v", store.ErrPersistence, err)
	}
	return users, nil
}

func (s *UserStore) saveLocked(users map[string]domain.UserAccount) error {
	payload, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode users: %v", store.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(s.dir, "users.*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp users file: %v", store.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write users: %v", store.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close users: %v", store.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename users: %v", store.ErrPersistence, err)
	}
	return nil
}
