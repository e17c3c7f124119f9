package settings

import (
	"context"
	"sync"
)

// MemStore is an in-process Store for tests and single-node development.
type MemStore struct {
	mu     sync.RWMutex
	admin  []AdminSetting
	users  []UserSetting
	nextID int64
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore { return &MemStore{} }

func (m *MemStore) AdminSettings(_ context.Context) ([]AdminSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AdminSetting(nil), m.admin...), nil
}

func (m *MemStore) AdminSetting(_ context.Context, settingID string) (*AdminSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.admin {
		if a.SettingID == settingID {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) EnsureAdmin(_ context.Context, s *AdminSetting) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admin {
		if a.SettingID == s.SettingID {
			return false, nil
		}
	}
	m.nextID++
	s.ID = m.nextID
	m.admin = append(m.admin, *s)
	return true, nil
}

func (m *MemStore) UpdateAdmin(_ context.Context, s *AdminSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.admin {
		if m.admin[i].SettingID == s.SettingID {
			m.admin[i].Value = s.Value
			m.admin[i].Edited = s.Edited
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) CountAdmin(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.admin), nil
}

// DeleteAdmin removes settingID.  Only tests use it.
func (m *MemStore) DeleteAdmin(settingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.admin {
		if m.admin[i].SettingID == settingID {
			m.admin = append(m.admin[:i], m.admin[i+1:]...)
			return
		}
	}
}

func (m *MemStore) UserSettings(_ context.Context, userID string) ([]UserSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UserSetting
	for _, u := range m.users {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemStore) UserSetting(_ context.Context, userID, settingID string) (*UserSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.UserID == userID && u.SettingID == settingID {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) UserSettingByRow(_ context.Context, rowID int64) (*UserSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ID == rowID {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CreateUserSetting(_ context.Context, s *UserSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UserID == s.UserID && u.SettingID == s.SettingID {
			s.ID = u.ID
			return nil
		}
	}
	m.nextID++
	s.ID = m.nextID
	m.users = append(m.users, *s)
	return nil
}

func (m *MemStore) UpdateUserSetting(_ context.Context, s *UserSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == s.ID {
			m.users[i].Value = s.Value
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) DeleteUserSettings(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.users[:0]
	for _, u := range m.users {
		if u.UserID != userID {
			kept = append(kept, u)
		}
	}
	m.users = kept
	return nil
}
