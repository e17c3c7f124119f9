package user

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Store persists users.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByOldEmail(ctx context.Context, email string) (*User, error)
	FindByNewPassToken(ctx context.Context, token string) (*User, error)
	FindByVerifyToken(ctx context.Context, token string) (*User, error)
	// ListBelowLevel returns users whose level is strictly below level.
	ListBelowLevel(ctx context.Context, level int) ([]User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// MemStore is an in-process Store for tests and single-node development.
type MemStore struct {
	mu    sync.RWMutex
	users map[string][]byte
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore { return &MemStore{users: make(map[string][]byte)} }

// memRecord carries the fields the client JSON view drops.
type memRecord struct {
	User
	PasswordHash string   `json:"passwordHash"`
	Security     Security `json:"security"`
}

func encode(u *User) ([]byte, error) {
	return json.Marshal(memRecord{User: *u, PasswordHash: u.PasswordHash, Security: u.Security})
}

func decode(b []byte) (*User, error) {
	var r memRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	u := r.User
	u.PasswordHash = r.PasswordHash
	u.Security = r.Security
	return &u, nil
}

func (m *MemStore) find(match func(*User) bool) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		u, err := decode(m.users[id])
		if err != nil {
			return nil, err
		}
		if match(u) {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) FindByID(_ context.Context, id string) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *MemStore) FindByUsername(_ context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

func (m *MemStore) FindByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *MemStore) FindByOldEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Security.VerifyEmail.OldEmail == email })
}

func (m *MemStore) FindByNewPassToken(_ context.Context, token string) (*User, error) {
	return m.find(func(u *User) bool {
		return token != "" && u.Security.NewPassLink != nil && u.Security.NewPassLink.Token == token
	})
}

func (m *MemStore) FindByVerifyToken(_ context.Context, token string) (*User, error) {
	return m.find(func(u *User) bool { return token != "" && u.Security.VerifyEmail.Token == token })
}

func (m *MemStore) ListBelowLevel(_ context.Context, level int) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []User
	for _, b := range m.users {
		u, err := decode(b)
		if err != nil {
			return nil, err
		}
		if u.UserLevel < level {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemStore) Create(_ context.Context, u *User) error {
	b, err := encode(u)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if o, err := decode(other); err == nil && o.Username == u.Username {
			return ErrDuplicate
		}
	}
	m.users[u.ID] = b
	return nil
}

func (m *MemStore) Update(_ context.Context, u *User) error {
	b, err := encode(u)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = b
	return nil
}

func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}
