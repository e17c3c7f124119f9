// internal/exposure/exposure.go
//
// Beacon – profile field visibility.
//
// Context
//   A user profile exposes a handful of fields (username, name, email,
//   created date) to other people.  Each field carries a visibility level:
//
//      0  public         anyone, including anonymous viewers
//      1  authenticated  any logged-in viewer
//      2  hidden         nobody but editors
//
//   Defaults come from the dropdown defaults of the exposure form.  A user’s
//   own stored levels override the defaults only while the admin lets users
//   choose (users-can-set-exposure-levels or use-users-exposure-levels).
//
//   Field ids address nested profile values with “_”, so `created_date` is
//   `created.date`.  Redact copies exactly the visible paths into a fresh
//   document of any depth.
//
//------------------------------------------------------------------------------

package exposure

import (
	"context"
	"fmt"
	"strings"

	"github.com/yanizio/beacon/internal/form"
)

// FormID is the form whose dropdown defaults define the default levels.
const FormID = "edit-expose-profile-form"

// Visibility levels.
const (
	Public        = 0
	Authenticated = 1
	Hidden        = 2
)

// Admin settings that let stored user levels take effect.
const (
	settingUsersCanSet = "users-can-set-exposure-levels"
	settingUseUsers    = "use-users-exposure-levels"
)

// Levels maps a field id to its visibility level.
type Levels map[string]int

// AdminReader reads one admin setting value.
type AdminReader interface {
	Admin(ctx context.Context, id string) (any, error)
}

// Resolver computes effective levels for a user.
type Resolver struct {
	forms    form.Store
	settings AdminReader
}

// NewResolver wires the resolver.
func NewResolver(forms form.Store, settings AdminReader) *Resolver {
	return &Resolver{forms: forms, settings: settings}
}

// Form returns the exposure form record.
func (r *Resolver) Form(ctx context.Context) (*form.Form, error) {
	f, err := r.forms.FindByFormID(ctx, FormID)
	if err != nil {
		return nil, fmt.Errorf("exposure: load %s: %w", FormID, err)
	}
	return f, nil
}

// Resolve returns the levels for a user whose stored choices are own (nil for
// none).  Password fields and structural fields never get a level.
func (r *Resolver) Resolve(ctx context.Context, own map[string]int) (Levels, error) {
	f, err := r.Form(ctx)
	if err != nil {
		return nil, err
	}
	overlay, err := r.overlayEnabled(ctx)
	if err != nil {
		return nil, err
	}

	out := make(Levels)
	f.EachField(false, func(fd *form.Field) {
		if fd.Password {
			return
		}
		lvl, _ := form.ToInt(fd.DefaultValue)
		if v, ok := own[fd.ID]; ok && overlay {
			lvl = v
		}
		out[fd.ID] = lvl
	})
	return out, nil
}

func (r *Resolver) overlayEnabled(ctx context.Context) (bool, error) {
	for _, id := range []string{settingUsersCanSet, settingUseUsers} {
		v, err := r.settings.Admin(ctx, id)
		if err != nil {
			return false, err
		}
		if v == true {
			return true, nil
		}
	}
	return false, nil
}

// Visible reports whether a field at level may be shown to a viewer at
// viewerLevel (0 for anonymous).
func Visible(level, viewerLevel int) bool {
	return level == Public || (level == Authenticated && viewerLevel > 0)
}

// Redact copies the fields of doc that levels allows viewerLevel to see.
// Fields listed in levels but missing from doc are skipped.
func Redact(doc map[string]any, levels Levels, viewerLevel int) map[string]any {
	out := make(map[string]any)
	for id, lvl := range levels {
		if !Visible(lvl, viewerLevel) {
			continue
		}
		path := strings.Split(id, "_")
		if v, ok := GetPath(doc, path); ok {
			SetPath(out, path, v)
		}
	}
	return out
}

// GetPath walks doc along path.
func GetPath(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath stores v at path inside dst, creating intermediate objects and
// keeping siblings that are already there.
func SetPath(dst map[string]any, path []string, v any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		dst[path[0]] = v
		return
	}
	next, ok := dst[path[0]].(map[string]any)
	if !ok {
		next = make(map[string]any)
		dst[path[0]] = next
	}
	SetPath(next, path[1:], v)
}
