package content

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsite/core"
)

const requiredText = "this field is required"

// Attrs holds the kind specific fields of an item. Stored as a JSON object.
type Attrs map[string]string

func (a Attrs) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Attrs) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = Attrs{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("attrs: cannot scan %T", src)
	}
	attrs := Attrs{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return errors.Wrap(err, "attrs")
	}
	*a = attrs
	return nil
}

type Item struct {
	ID          int64       `json:"id" db:"id"`
	Kind        string      `json:"kind" db:"kind"`
	Title       string      `json:"title" db:"title"`
	Body        string      `json:"body" db:"body"`
	Image       null.String `json:"-" db:"image"` // media storage key
	ImageURL    string      `json:"image_url,omitempty" db:"-"`
	Attrs       Attrs       `json:"attrs" db:"attrs"`
	PublishedAt null.Time   `json:"published_at" db:"published_at"` // UTC
	AuthorID    null.String `json:"author_id" db:"author_id"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// ItemInput is what editors provide to create or replace an item.
type ItemInput struct {
	Title       string     `json:"title" form:"title"`
	Body        string     `json:"body" form:"body"`
	Attrs       Attrs      `json:"attrs"`
	PublishedAt *time.Time `json:"published_at"`
}

// Validate cleans the input and checks it against kind.
// hasImage tells whether the item will have an image once saved.
func (in *ItemInput) Validate(kind Kind, hasImage bool) error {
	in.Title = core.CleanString(in.Title)
	in.Body = strings.TrimSpace(in.Body)

	var fields []core.FieldError
	if kind.TitleRequired && in.Title == "" {
		fields = append(fields, core.FieldError{Field: "title", Error: requiredText})
	}
	if kind.ImageRequired && !hasImage {
		fields = append(fields, core.FieldError{Field: "image", Error: requiredText})
	}

	cleaned := make(Attrs, len(in.Attrs))
	for name, val := range in.Attrs {
		attr, ok := kind.attr(name)
		if !ok {
			fields = append(fields, core.FieldError{Field: "attrs." + name, Error: "unknown attribute"})
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if attr.Email && core.Validate.Var(val, "email") != nil {
			fields = append(fields, core.FieldError{Field: "attrs." + name, Error: "invalid email address"})
			continue
		}
		cleaned[name] = val
	}
	for _, attr := range kind.Attrs {
		if _, ok := cleaned[attr.Name]; attr.Required && !ok && !hasFieldError(fields, "attrs."+attr.Name) {
			fields = append(fields, core.FieldError{Field: "attrs." + attr.Name, Error: requiredText})
		}
	}
	in.Attrs = cleaned

	if len(fields) > 0 {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
		return core.NewValidationError(errors.New("invalid "+kind.Name), fields...)
	}
	return nil
}

func hasFieldError(fields []core.FieldError, field string) bool {
	for _, f := range fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

type QueryFilter struct {
	Search string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Matches reports whether item satisfies the filter. Used by the in-memory repository.
func (qf QueryFilter) Matches(item Item) bool {
	if qf.Search == "" {
		return true
	}
	s := strings.ToLower(qf.Search)
	return strings.Contains(strings.ToLower(item.Title), s) || strings.Contains(strings.ToLower(item.Body), s)
}
