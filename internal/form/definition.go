// internal/form/definition.go
//
// Beacon – Forms subsystem: the persisted form record.
//
// Context
//   Every API endpoint and every client view is described by one Form record,
//   keyed by a globally unique FormID.  The record carries two privilege
//   contracts (use and edit), free-form editor options, and, for endpoints
//   that accept data, the field Schema the engine validates payloads against.
//   Records are seeded from embedded YAML and then live in the database, so
//   the structs carry both `json` and `yaml` tags.
//
// Workflow
//   •  Form.Rights() projects the privilege fields into acl.Rights.
//   •  Form.EachField walks the schema in declaration order.
//   •  Form.EditorOption reads `editorOptions.<key>.value`.
//   •  UI-only keys (labels, classes, button captions) ride along in Extra so
//      the client receives them untouched.
//
// Style
//   Comments follow Beacon’s guide: full sentences, two spaces after periods,
//   and Oxford commas.  Helper comments use short noun phrases.
//
//------------------------------------------------------------------------------

package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/history"
)

// ErrNotFound is returned by a Store when no form has the requested ID.
var ErrNotFound = errors.New("form not found")

// Record types.  Only “view” is interpreted by the server (route access map).
const (
	TypeForm    = "form"
	TypeReadAPI = "readapi"
	TypeView    = "view"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Form is one endpoint or view definition.
type Form struct {
	FormID             string          `json:"formId"                       yaml:"formId"`
	Path               string          `json:"path,omitempty"               yaml:"path"`
	Method             string          `json:"method,omitempty"             yaml:"method"`
	Type               string          `json:"type"                         yaml:"type"`
	Kind               acl.Kind        `json:"kind,omitempty"               yaml:"kind"`
	UseRightsLevel     int             `json:"useRightsLevel"               yaml:"useRightsLevel"`
	UseRightsUsers     []string        `json:"useRightsUsers"               yaml:"useRightsUsers"`
	UseRightsGroups    []string        `json:"useRightsGroups"              yaml:"useRightsGroups"`
	EditorRightsLevel  int             `json:"editorRightsLevel"            yaml:"editorRightsLevel"`
	EditorRightsUsers  []string        `json:"editorRightsUsers"            yaml:"editorRightsUsers"`
	EditorRightsGroups []string        `json:"editorRightsGroups"           yaml:"editorRightsGroups"`
	EditorOptions      map[string]any  `json:"editorOptions,omitempty"      yaml:"editorOptions"`
	Schema             *Schema         `json:"form,omitempty"               yaml:"form"`
	Locked             bool            `json:"locked,omitempty"             yaml:"locked"`
	Created            history.Created `json:"created"                      yaml:"-"`
	Edited             history.Log     `json:"edited,omitempty"             yaml:"-"`
}

// Schema is the field contract of a form.
type Schema struct {
	Fieldsets    []Fieldset     `json:"fieldsets,omitempty" yaml:"fieldsets"`
	SubmitFields []string       `json:"submitFields"        yaml:"submitFields"`
	SingleEdit   bool           `json:"singleEdit,omitempty" yaml:"singleEdit"`
	Extra        map[string]any `json:"-"                   yaml:",inline"`
}

// Fieldset groups fields for display.
type Fieldset struct {
	ID     string         `json:"id,omitempty" yaml:"id"`
	Fields []Field        `json:"fields"       yaml:"fields"`
	Extra  map[string]any `json:"-"            yaml:",inline"`
}

// Field is one input (or structural element) of a form.
type Field struct {
	ID           string         `json:"id,omitempty"           yaml:"id"`
	Type         FieldKind      `json:"type"                   yaml:"type"`
	Required     bool           `json:"required,omitempty"     yaml:"required"`
	MinLength    int            `json:"minLength,omitempty"    yaml:"minLength"`
	MaxLength    int            `json:"maxLength,omitempty"    yaml:"maxLength"`
	Email        bool           `json:"email,omitempty"        yaml:"email"`
	Regex        string         `json:"regex,omitempty"        yaml:"regex"`
	Options      []Option       `json:"options,omitzero"       yaml:"options"`
	MinValue     *float64       `json:"minValue,omitempty"     yaml:"minValue"`
	MaxValue     *float64       `json:"maxValue,omitempty"     yaml:"maxValue"`
	Password     bool           `json:"password,omitempty"     yaml:"password"`
	Disabled     bool           `json:"disabled,omitempty"     yaml:"disabled"`
	DefaultValue any            `json:"defaultValue,omitempty" yaml:"defaultValue"`
	SettingType  string         `json:"settingType,omitempty"  yaml:"settingType"`
	EnabledID    string         `json:"enabledId,omitempty"    yaml:"enabledId"`
	Extra        map[string]any `json:"-"                      yaml:",inline"`
}

// Option is one dropdown choice.  Value keeps its native JSON type.
type Option struct {
	Value   any    `json:"value"             yaml:"value"`
	Label   string `json:"label,omitempty"   yaml:"label"`
	LabelID string `json:"labelId,omitempty" yaml:"labelId"`
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Rights returns the privilege contract for acl checks.
func (f *Form) Rights() acl.Rights {
	kind := f.Kind
	if kind == "" {
		kind = acl.KindGeneric
	}
	return acl.Rights{
		Kind:         kind,
		UseLevel:     f.UseRightsLevel,
		UseUsers:     f.UseRightsUsers,
		UseGroups:    f.UseRightsGroups,
		EditorLevel:  f.EditorRightsLevel,
		EditorUsers:  f.EditorRightsUsers,
		EditorGroups: f.EditorRightsGroups,
	}
}

// EachField calls fn for every field in declaration order.  Structural
// fields are included only when all is true.
func (f *Form) EachField(all bool, fn func(*Field)) {
	if f == nil || f.Schema == nil {
		return
	}
	for i := range f.Schema.Fieldsets {
		fs := &f.Schema.Fieldsets[i]
		for j := range fs.Fields {
			if !all && fs.Fields[j].Type.Structural() {
				continue
			}
			fn(&fs.Fields[j])
		}
	}
}

// FieldByID returns the first field with id, or nil.
func (s *Schema) FieldByID(id string) *Field {
	if s == nil {
		return nil
	}
	for i := range s.Fieldsets {
		for j := range s.Fieldsets[i].Fields {
			if s.Fieldsets[i].Fields[j].ID == id {
				return &s.Fieldsets[i].Fields[j]
			}
		}
	}
	return nil
}

// EditorOption returns `editorOptions.<key>.value`.  Options stored without
// the nested `value` wrapper are returned as-is.
func (f *Form) EditorOption(key string) (any, bool) {
	raw, ok := f.EditorOptions[key]
	if !ok {
		return nil, false
	}
	if m, isMap := raw.(map[string]any); isMap {
		v, has := m["value"]
		return v, has
	}
	return raw, true
}

// EditorOptionInt is EditorOption coerced to int with a fallback.
func (f *Form) EditorOptionInt(key string, fallback int) int {
	v, ok := f.EditorOption(key)
	if !ok {
		return fallback
	}
	if n, ok := ToInt(v); ok && n != 0 {
		return n
	}
	return fallback
}

// -----------------------------------------------------------------------------
// Structural validation (preset and editor input)
// -----------------------------------------------------------------------------

// Check enforces rules that tags cannot express.
func (f *Form) Check() error {
	if f.FormID == "" {
		return errors.New("form: missing formId")
	}
	if !f.Kind.Valid() {
		return fmt.Errorf("form %s: unknown kind %q", f.FormID, f.Kind)
	}
	if f.UseRightsLevel < 0 || f.EditorRightsLevel < 0 {
		return fmt.Errorf("form %s: rights levels cannot be negative", f.FormID)
	}
	seen := make(map[string]struct{})
	var err error
	f.EachField(false, func(fd *Field) {
		if err != nil {
			return
		}
		if fd.ID == "" {
			err = fmt.Errorf("form %s: %s field missing id", f.FormID, fd.Type)
			return
		}
		if _, dup := seen[fd.ID]; dup {
			err = fmt.Errorf("form %s: duplicate field id %q", f.FormID, fd.ID)
			return
		}
		seen[fd.ID] = struct{}{}
		if fd.Regex != "" {
			if _, rxErr := regexp.Compile(fd.Regex); rxErr != nil {
				err = fmt.Errorf("form %s: field %q invalid regex: %v", f.FormID, fd.ID, rxErr)
			}
		}
		if fd.MinLength < 0 || fd.MaxLength < 0 {
			err = fmt.Errorf("form %s: field %q negative length bound", f.FormID, fd.ID)
		}
	})
	return err
}

// -----------------------------------------------------------------------------
// JSON with pass-through extras
// -----------------------------------------------------------------------------

func (s Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	return marshalWithExtra(plain(s), s.Extra)
}

func (s *Schema) UnmarshalJSON(b []byte) error {
	type plain Schema
	var p plain
	extra, err := unmarshalWithExtra(b, &p)
	if err != nil {
		return err
	}
	*s = Schema(p)
	s.Extra = extra
	return nil
}

func (fs Fieldset) MarshalJSON() ([]byte, error) {
	type plain Fieldset
	return marshalWithExtra(plain(fs), fs.Extra)
}

func (fs *Fieldset) UnmarshalJSON(b []byte) error {
	type plain Fieldset
	var p plain
	extra, err := unmarshalWithExtra(b, &p)
	if err != nil {
		return err
	}
	*fs = Fieldset(p)
	fs.Extra = extra
	return nil
}

func (fd Field) MarshalJSON() ([]byte, error) {
	type plain Field
	return marshalWithExtra(plain(fd), fd.Extra)
}

func (fd *Field) UnmarshalJSON(b []byte) error {
	type plain Field
	var p plain
	extra, err := unmarshalWithExtra(b, &p)
	if err != nil {
		return err
	}
	*fd = Field(p)
	fd.Extra = extra
	return nil
}

// marshalWithExtra encodes known, then merges extra keys that known did not
// set.
func marshalWithExtra(known any, extra map[string]any) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// unmarshalWithExtra decodes b into known and returns the keys known does not
// declare.
func unmarshalWithExtra(b []byte, known any) (map[string]any, error) {
	if err := json.Unmarshal(b, known); err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k := range jsonKeys(known) {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
