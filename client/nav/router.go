// Package nav is the navigation shell of the admin panel: a declarative route
// table guarded by auth.Guard, and the Layout wrapping the routes in the
// panel's chrome.
package nav

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/schoolsite/client/session"
	"github.com/trezcool/schoolsite/core/auth"
)

const maxRedirects = 4

type Request struct {
	Path      string // as navigated, may be below Route.Path
	Route     *Route
	Principal *auth.Principal
}

type RenderFunc func(ctx context.Context, w io.Writer, req Request) error

// Route is one entry of the route table. Non public routes are guarded by
// Requirement, whose Path is the route's own.
type Route struct {
	Path        string
	Title       string
	Public      bool
	Menu        bool // listed in the sidebar
	Subtree     bool // also matches paths below Path
	Requirement auth.Requirement
	Render      RenderFunc
}

func (r *Route) matches(path string) bool {
	if path == r.Path {
		return true
	}
	if !r.Subtree {
		return false
	}
	prefix := r.Path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(path, prefix)
}

// Outcome is where a navigation ended. Route is nil for unknown paths.
type Outcome struct {
	Requested string
	Path      string
	Route     *Route
	Verdict   auth.Verdict // of the last guarded hop
	Principal *auth.Principal
}

func (o Outcome) Redirected() bool { return o.Path != o.Requested }

func (o Outcome) NotFound() bool { return o.Route == nil }

type RouterOptions struct {
	Guard auth.Guard
	// AfterLogin is where CompleteLogin lands when no path was remembered. Defaults to "/".
	AfterLogin string
	// OnChange is called after every navigation, including the ones a principal change triggers.
	OnChange func(Outcome)
}

type Router struct {
	session *session.Context
	guard   auth.Guard
	opts    RouterOptions
	routes  []Route

	mu       sync.Mutex
	current  Outcome
	returnTo string

	unsubscribe func()
}

// NewRouter validates routes and subscribes to the session so the current
// route is re-evaluated whenever the principal changes.
func NewRouter(sc *session.Context, routes []Route, opts RouterOptions) (*Router, error) {
	seen := make(map[string]bool, len(routes))
	table := make([]Route, len(routes))
	for i, r := range routes {
		r.Path = cleanPath(r.Path)
		if seen[r.Path] {
			return nil, fmt.Errorf("duplicate route %q", r.Path)
		}
		seen[r.Path] = true
		if !r.Public {
			r.Requirement = auth.Require(r.Path, r.Requirement.AllowedRoles...)
		}
		table[i] = r
	}
	// longest paths first so subtrees do not shadow their children
	sort.SliceStable(table, func(i, j int) bool { return len(table[i].Path) > len(table[j].Path) })

	if opts.AfterLogin == "" {
		opts.AfterLogin = "/"
	}
	rt := &Router{session: sc, guard: opts.Guard, opts: opts, routes: table}
	rt.unsubscribe = sc.Subscribe(func(*auth.Principal) { rt.reevaluate() })
	return rt, nil
}

func (rt *Router) Close() { rt.unsubscribe() }

// Routes returns the route table, longest paths first.
func (rt *Router) Routes() []Route {
	out := make([]Route, len(rt.routes))
	copy(out, rt.routes)
	return out
}

func (rt *Router) Guard() auth.Guard { return rt.guard }

func (rt *Router) Session() *session.Context { return rt.session }

func (rt *Router) lookup(path string) *Route {
	for i := range rt.routes {
		if rt.routes[i].matches(path) {
			return &rt.routes[i]
		}
	}
	return nil
}

// Allowed reports whether p may enter route.
func (rt *Router) Allowed(p *auth.Principal, route *Route) bool {
	return route.Public || rt.guard.Evaluate(p, route.Requirement).Allowed()
}

// Navigate resolves path for the current principal, following guard redirects.
// A redirect to the login page remembers the attempted path for CompleteLogin;
// landing on any other page forgets it.
func (rt *Router) Navigate(ctx context.Context, path string) Outcome {
	p := rt.session.Current()
	out := Outcome{Requested: cleanPath(path), Path: cleanPath(path), Principal: p}

	for hop := 0; hop <= maxRedirects; hop++ {
		out.Route = rt.lookup(out.Path)
		if out.Route == nil || out.Route.Public {
			break
		}
		out.Verdict = rt.guard.Evaluate(p, out.Route.Requirement)
		if out.Verdict.Allowed() {
			break
		}
		if out.Verdict.ReturnTo != "" {
			rt.mu.Lock()
			rt.returnTo = out.Verdict.ReturnTo
			if out.Path != out.Route.Path {
				rt.returnTo = out.Path // keep the exact sub path
			}
			rt.mu.Unlock()
		}
		out.Path = cleanPath(out.Verdict.Redirect)
	}

	rt.mu.Lock()
	if out.Route != nil && !out.Redirected() && out.Path != cleanPath(rt.guard.Login()) {
		rt.returnTo = "" // the visitor moved on
	}
	rt.current = out
	rt.mu.Unlock()
	if rt.opts.OnChange != nil {
		rt.opts.OnChange(out)
	}
	return out
}

func (rt *Router) Current() Outcome {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.current
}

// ReturnTo is the path a successful login will land on, empty when none was remembered.
func (rt *Router) ReturnTo() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.returnTo
}

// CompleteLogin logs in and navigates back to the path that required it.
func (rt *Router) CompleteLogin(ctx context.Context, in session.LoginInput) (Outcome, error) {
	if _, err := rt.session.Login(ctx, in); err != nil {
		return rt.Current(), err
	}

	rt.mu.Lock()
	dest := rt.returnTo
	rt.returnTo = ""
	rt.mu.Unlock()
	if dest == "" {
		dest = rt.opts.AfterLogin
	}
	return rt.Navigate(ctx, dest), nil
}

// reevaluate runs the guard again on the route currently shown.
func (rt *Router) reevaluate() {
	cur := rt.Current()
	if cur.Path == "" {
		return
	}
	rt.Navigate(context.Background(), cur.Path)
}

func cleanPath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path = strings.TrimRight(path, "/"); path == "" {
		return "/"
	}
	return path
}
