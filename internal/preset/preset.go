// internal/preset/preset.go
//
// Beacon – preset catalogue and seeding.
//
// Context
//   A fresh database knows nothing about endpoints, views, settings, or
//   mail.  The catalogue that bootstraps it ships inside the binary as YAML
//   (data/*.yaml) and is written with Ensure semantics: a record whose key
//   already exists is left alone, a missing one is inserted.  Running Seed
//   at every start therefore restores deleted preset records without
//   touching anything an operator edited.
//
// Workflow
//   Load()        parse and check the embedded files once.
//   Seed(ctx)
//     1.  Endpoint forms, then view forms built from routes.yaml.
//     2.  Admin settings derived from the fields of admin-settings-form.
//     3.  Email templates.
//   Report counts inserted records per kind.
//
// Notes
//   Admin setting rows take type, default, password flag, and read right
//   from the field that declares them (`settingType`, `defaultValue`,
//   `password`, `settingReadRight`).  A field without settingType is UI only.
//
//------------------------------------------------------------------------------

package preset

import (
	"context"
	"embed"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/history"
	"github.com/yanizio/beacon/internal/message"
	"github.com/yanizio/beacon/internal/settings"
)

//go:embed data/*.yaml
var files embed.FS

// Route is one client view as listed in routes.yaml.
type Route struct {
	Path              string `yaml:"path"`
	FormID            string `yaml:"formId"`
	UseRightsLevel    int    `yaml:"useRightsLevel"`
	EditorRightsLevel int    `yaml:"editorRightsLevel"`
	Locked            bool   `yaml:"locked"`
}

// Catalogue is the parsed preset data.
type Catalogue struct {
	Forms  []form.Form
	Routes []Route
	Emails []message.Template
}

// Load parses the embedded catalogue and checks every form.
func Load() (*Catalogue, error) {
	var c Catalogue
	for name, dst := range map[string]any{
		"data/forms.yaml":  &c.Forms,
		"data/routes.yaml": &c.Routes,
		"data/emails.yaml": &c.Emails,
	} {
		raw, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
	}
	seen := make(map[string]struct{})
	for _, f := range c.AllForms() {
		if err := f.Check(); err != nil {
			return nil, fmt.Errorf("preset: %w", err)
		}
		if _, dup := seen[f.FormID]; dup {
			return nil, fmt.Errorf("preset: duplicate formId %q", f.FormID)
		}
		seen[f.FormID] = struct{}{}
	}
	return &c, nil
}

// AllForms returns endpoint forms followed by view forms.  Nil rights lists
// become empty lists so stored records always carry arrays.
func (c *Catalogue) AllForms() []form.Form {
	out := make([]form.Form, 0, len(c.Forms)+len(c.Routes))
	out = append(out, c.Forms...)
	for _, r := range c.Routes {
		out = append(out, form.Form{
			FormID:            r.FormID,
			Path:              r.Path,
			Method:            "GET",
			Type:              form.TypeView,
			UseRightsLevel:    r.UseRightsLevel,
			EditorRightsLevel: r.EditorRightsLevel,
			Locked:            r.Locked,
		})
	}
	for i := range out {
		f := &out[i]
		for _, list := range []*[]string{&f.UseRightsUsers, &f.UseRightsGroups, &f.EditorRightsUsers, &f.EditorRightsGroups} {
			if *list == nil {
				*list = []string{}
			}
		}
	}
	return out
}

// AdminSettings derives the admin setting rows from admin-settings-form.
func (c *Catalogue) AdminSettings() ([]settings.AdminSetting, error) {
	var def *form.Form
	for i := range c.Forms {
		if c.Forms[i].FormID == settings.AdminSettingsFormID {
			def = &c.Forms[i]
		}
	}
	if def == nil {
		return nil, fmt.Errorf("preset: %s missing", settings.AdminSettingsFormID)
	}
	var out []settings.AdminSetting
	def.EachField(false, func(fd *form.Field) {
		if fd.SettingType == "" {
			return
		}
		readRight, _ := form.ToInt(fd.Extra["settingReadRight"])
		val := form.Stringify(fd.DefaultValue)
		out = append(out, settings.AdminSetting{
			SettingID:        fd.ID,
			Value:            val,
			DefaultValue:     val,
			Type:             fd.SettingType,
			Password:         fd.Password,
			SettingReadRight: readRight,
		})
	})
	return out, nil
}

/*──────────────────────────── seeding ──────────────────────────────────────*/

// Report counts the records a Seed call inserted.
type Report struct {
	Forms    int `json:"forms"`
	Settings int `json:"settings"`
	Emails   int `json:"emails"`
}

// Seeder writes a Catalogue into the stores.
type Seeder struct {
	cat      *Catalogue
	forms    form.Store
	settings settings.Store
	emails   message.Store
	now      func() time.Time
}

// NewSeeder wires a seeder for cat.
func NewSeeder(cat *Catalogue, forms form.Store, st settings.Store, emails message.Store) *Seeder {
	return &Seeder{cat: cat, forms: forms, settings: st, emails: emails, now: time.Now}
}

// Seed inserts every missing preset record.
func (s *Seeder) Seed(ctx context.Context) (Report, error) {
	var rep Report
	created := history.Created{Date: s.now().UTC(), AutoCreated: true}

	for _, f := range s.cat.AllForms() {
		f.Created = created
		f.Edited = history.Log{}
		ok, err := s.forms.Ensure(ctx, &f)
		if err != nil {
			return rep, fmt.Errorf("preset form %s: %w", f.FormID, err)
		}
		if ok {
			rep.Forms++
		}
	}

	rows, err := s.cat.AdminSettings()
	if err != nil {
		return rep, err
	}
	for i := range rows {
		rows[i].Created = created
		rows[i].Edited = history.Log{}
		ok, err := s.settings.EnsureAdmin(ctx, &rows[i])
		if err != nil {
			return rep, fmt.Errorf("preset setting %s: %w", rows[i].SettingID, err)
		}
		if ok {
			rep.Settings++
		}
	}

	for i := range s.cat.Emails {
		t := s.cat.Emails[i]
		t.Created = created
		t.Edited = history.Log{}
		ok, err := s.emails.Ensure(ctx, &t)
		if err != nil {
			return rep, fmt.Errorf("preset email %s: %w", t.EmailID, err)
		}
		if ok {
			rep.Emails++
		}
	}

	zap.S().Infow("preset data ensured",
		"forms", rep.Forms, "settings", rep.Settings, "emails", rep.Emails)
	return rep, nil
}
