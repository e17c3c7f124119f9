package form

import "context"

// Route is the projection of a view record used for the client route map.
type Route struct {
	FormID         string `db:"form_id"          json:"formId"`
	UseRightsLevel int    `db:"use_rights_level" json:"useRightsLevel"`
}

// Query describes one page of the editor's form listing.
type Query struct {
	EditorLevel   int      // viewer level; records with editorRightsLevel above it are hidden
	EditorID      string   // viewer id; matched against editorRightsUsers
	Search        string   // substring, empty for all
	CaseSensitive bool     // search case handling
	Fields        []string // JSON names searched: formId, path, method, type
	SortBy        string   // JSON name of the sort column
	Desc          bool
	Page          int // 1-based
	PerPage       int
}

// Store persists Form records.
type Store interface {
	FindByFormID(ctx context.Context, formID string) (*Form, error)
	All(ctx context.Context) ([]Form, error)
	ViewRoutes(ctx context.Context) ([]Route, error)
	Search(ctx context.Context, q Query) (total int, forms []Form, err error)
	// Ensure inserts f unless a record with the same FormID exists and
	// reports whether it inserted.
	Ensure(ctx context.Context, f *Form) (bool, error)
	Update(ctx context.Context, f *Form) error
	Count(ctx context.Context) (int, error)
}

// searchColumns maps the JSON names accepted in Query to table columns.
var searchColumns = map[string]string{
	"formId":            "form_id",
	"path":              "path",
	"method":            "method",
	"type":              "type",
	"useRightsLevel":    "use_rights_level",
	"editorRightsLevel": "editor_rights_level",
}

func (q *Query) normalise() {
	if q.PerPage <= 0 {
		q.PerPage = 25
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if _, ok := searchColumns[q.SortBy]; !ok {
		q.SortBy = "formId"
	}
	kept := q.Fields[:0:0]
	for _, f := range q.Fields {
		if _, ok := searchColumns[f]; ok {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		kept = []string{"formId", "path", "method"}
	}
	q.Fields = kept
}
