package nav

import (
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
)

const (
	HomePath      = "/"
	LoginPath     = "/login"
	DashboardPath = "/admin"
	UsersPath     = "/admin/users"
)

var staff = []auth.Role{auth.RoleAdmin, auth.RoleGuru}

// Views renders the admin pages. Nil views render the page title only.
type Views struct {
	Home      RenderFunc
	Login     RenderFunc
	Dashboard RenderFunc
	Users     RenderFunc
	Kind      func(kind content.Kind) RenderFunc
}

// AdminRoutes is the route table of the admin panel: the public home and login
// pages, the dashboard for staff, user management for admins, and one page per
// content kind guarded by the roles allowed to edit it.
func AdminRoutes(kinds []content.Kind, views Views) []Route {
	routes := []Route{
		{Path: HomePath, Title: "Home", Public: true, Render: views.Home},
		{Path: LoginPath, Title: "Login", Public: true, Render: views.Login},
		{Path: DashboardPath, Title: "Dashboard", Menu: true, Requirement: auth.Require(DashboardPath, staff...), Render: views.Dashboard},
		{Path: UsersPath, Title: "Users", Menu: true, Subtree: true, Requirement: auth.Require(UsersPath, auth.RoleAdmin), Render: views.Users},
	}
	for _, kind := range kinds {
		path := DashboardPath + kind.Path()
		var render RenderFunc
		if views.Kind != nil {
			render = views.Kind(kind)
		}
		routes = append(routes, Route{
			Path:        path,
			Title:       kind.Title,
			Menu:        true,
			Subtree:     !kind.Singleton,
			Requirement: kind.WriteRequirement(path),
			Render:      render,
		})
	}
	return routes
}

// AdminGuard sends anonymous and under-privileged visitors to the login page.
func AdminGuard(mismatch auth.MismatchPolicy) auth.Guard {
	return auth.Guard{LoginPath: LoginPath, HomePath: HomePath, Mismatch: mismatch}
}
