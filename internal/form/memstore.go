package form

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemStore is an in-process Store for tests and single-node development.
// Records are copied on the way in and out so callers never share state.
type MemStore struct {
	mu    sync.RWMutex
	forms map[string][]byte
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore { return &MemStore{forms: make(map[string][]byte)} }

func (m *MemStore) FindByFormID(_ context.Context, formID string) (*Form, error) {
	m.mu.RLock()
	doc, ok := m.forms[formID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDoc(doc)
}

func (m *MemStore) All(_ context.Context) ([]Form, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.forms))
	for id := range m.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, m.forms[id])
	}
	m.mu.RUnlock()
	return decodeDocs(docs)
}

func (m *MemStore) ViewRoutes(ctx context.Context) ([]Route, error) {
	all, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []Route
	for _, f := range all {
		if f.Type == TypeView {
			out = append(out, Route{FormID: f.FormID, UseRightsLevel: f.UseRightsLevel})
		}
	}
	return out, nil
}

func (m *MemStore) Search(ctx context.Context, q Query) (int, []Form, error) {
	q.normalise()
	all, err := m.All(ctx)
	if err != nil {
		return 0, nil, err
	}

	needle := q.Search
	if !q.CaseSensitive {
		needle = strings.ToLower(needle)
	}
	var hits []Form
	for _, f := range all {
		if f.EditorRightsLevel > q.EditorLevel && !slices.Contains(f.EditorRightsUsers, q.EditorID) {
			continue
		}
		if needle != "" && !matchesAny(&f, q.Fields, needle, q.CaseSensitive) {
			continue
		}
		hits = append(hits, f)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := columnValue(&hits[i], q.SortBy), columnValue(&hits[j], q.SortBy)
		if a == b {
			a, b = hits[i].FormID, hits[j].FormID
		}
		if q.Desc {
			return a > b
		}
		return a < b
	})

	total := len(hits)
	start := min((q.Page-1)*q.PerPage, total)
	end := min(start+q.PerPage, total)
	return total, hits[start:end], nil
}

func (m *MemStore) Ensure(_ context.Context, f *Form) (bool, error) {
	doc, err := json.Marshal(f)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.forms[f.FormID]; exists {
		return false, nil
	}
	m.forms[f.FormID] = doc
	return true, nil
}

func (m *MemStore) Update(_ context.Context, f *Form) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.forms[f.FormID]; !exists {
		return ErrNotFound
	}
	m.forms[f.FormID] = doc
	return nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.forms), nil
}

// Delete removes formID.  Only tests and the preset checks use it.
func (m *MemStore) Delete(formID string) {
	m.mu.Lock()
	delete(m.forms, formID)
	m.mu.Unlock()
}

func matchesAny(f *Form, fields []string, needle string, caseSensitive bool) bool {
	for _, name := range fields {
		v := columnValue(f, name)
		if !caseSensitive {
			v = strings.ToLower(v)
		}
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

// columnValue renders the sortable projection of f.  Levels are zero-padded
// so string order matches numeric order.
func columnValue(f *Form, name string) string {
	switch name {
	case "path":
		return f.Path
	case "method":
		return f.Method
	case "type":
		return f.Type
	case "useRightsLevel":
		return pad(f.UseRightsLevel)
	case "editorRightsLevel":
		return pad(f.EditorRightsLevel)
	default:
		return f.FormID
	}
}

func pad(n int) string {
	s := strconv.Itoa(n)
	if len(s) < 6 {
		s = strings.Repeat("0", 6-len(s)) + s
	}
	return s
}
