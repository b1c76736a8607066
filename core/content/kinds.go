// Package content holds the content resources of the school site: the kind registry
// (collections such as news or gallery, singletons such as the school profile),
// the items stored for each kind and the service managing them.
package content

import (
	"sort"

	"github.com/trezcool/schoolsite/core/auth"
)

type Attr struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Email    bool   `json:"-"` // value must be an email address
}

// Kind describes one content resource.
// ReadRoles nil means the kind is public; WriteRoles always lists the editors.
type Kind struct {
	Name          string      `json:"name"`
	Title         string      `json:"title"`
	Singleton     bool        `json:"singleton"`
	ReadRoles     []auth.Role `json:"read_roles"`
	WriteRoles    []auth.Role `json:"write_roles"`
	TitleRequired bool        `json:"title_required"`
	ImageRequired bool        `json:"image_required"`
	Attrs         []Attr      `json:"attrs"`
}

var (
	staff     = []auth.Role{auth.RoleAdmin, auth.RoleGuru}
	adminOnly = []auth.Role{auth.RoleAdmin}

	registry = []Kind{
		{Name: "news", Title: "News", WriteRoles: staff, TitleRequired: true, Attrs: []Attr{{Name: "category"}}},
		{Name: "gallery", Title: "Gallery", WriteRoles: staff, ImageRequired: true, Attrs: []Attr{{Name: "caption"}}},
		{Name: "teacher", Title: "Teachers", WriteRoles: adminOnly, TitleRequired: true, Attrs: []Attr{
			{Name: "nip"}, {Name: "subject", Required: true}, {Name: "position"},
		}},
		{Name: "program", Title: "Programs", WriteRoles: adminOnly, TitleRequired: true},
		{Name: "achievement", Title: "Achievements", WriteRoles: staff, TitleRequired: true, Attrs: []Attr{
			{Name: "year"}, {Name: "level"},
		}},
		{Name: "student", Title: "Students", ReadRoles: staff, WriteRoles: adminOnly, TitleRequired: true, Attrs: []Attr{
			{Name: "nis", Required: true}, {Name: "class", Required: true}, {Name: "gender"},
		}},
		{Name: "parent", Title: "Parents", ReadRoles: staff, WriteRoles: adminOnly, TitleRequired: true, Attrs: []Attr{
			{Name: "student_name", Required: true}, {Name: "phone"}, {Name: "address"},
		}},
		{Name: "announcement", Title: "Announcements", WriteRoles: staff, TitleRequired: true, Attrs: []Attr{{Name: "audience"}}},
		{Name: "slider", Title: "Sliders", WriteRoles: adminOnly, ImageRequired: true, Attrs: []Attr{{Name: "link"}}},

		{Name: "profile", Title: "Profile", Singleton: true, WriteRoles: adminOnly, Attrs: []Attr{
			{Name: "vision", Required: true}, {Name: "mission", Required: true},
			{Name: "address"}, {Name: "phone"}, {Name: "email", Email: true},
		}},
		{Name: "history", Title: "History", Singleton: true, WriteRoles: adminOnly},
		{Name: "headmaster", Title: "Headmaster", Singleton: true, WriteRoles: adminOnly, Attrs: []Attr{
			{Name: "name", Required: true}, {Name: "greeting"},
		}},
	}

	byName = indexKinds(registry)
)

func indexKinds(kinds []Kind) map[string]Kind {
	idx := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		idx[k.Name] = k
	}
	return idx
}

// Kinds returns every content kind in display order.
func Kinds() []Kind {
	kinds := make([]Kind, len(registry))
	copy(kinds, registry)
	return kinds
}

// SingletonNames returns the names of the singleton kinds, sorted.
func SingletonNames() []string {
	var names []string
	for _, k := range registry {
		if k.Singleton {
			names = append(names, k.Name)
		}
	}
	sort.Strings(names)
	return names
}

func Lookup(name string) (Kind, bool) {
	k, ok := byName[name]
	return k, ok
}

func (k Kind) Public() bool { return k.ReadRoles == nil }

// Path is the API path of the kind, relative to /api.
func (k Kind) Path() string { return "/" + k.Name }

// ReadRequirement returns the requirement guarding reads, or false when the kind is public.
func (k Kind) ReadRequirement(path string) (auth.Requirement, bool) {
	if k.Public() {
		return auth.Requirement{}, false
	}
	return auth.Require(path, k.ReadRoles...), true
}

func (k Kind) WriteRequirement(path string) auth.Requirement {
	return auth.Require(path, k.WriteRoles...)
}

// CanWrite reports whether role may create, update or delete items of the kind.
func (k Kind) CanWrite(role auth.Role) bool {
	return k.WriteRequirement("").Admits(role)
}

func (k Kind) attr(name string) (Attr, bool) {
	for _, a := range k.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}
