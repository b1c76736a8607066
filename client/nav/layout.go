package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/storage/kv"
)

// LayoutKey is the kv key of the layout state, kept apart from the session record.
const LayoutKey = "layout"

type layoutState struct {
	SidebarCollapsed bool `json:"sidebar_collapsed"`
}

type MenuItem struct {
	Path   string
	Title  string
	Active bool
}

// Layout renders a route inside the panel chrome: a header naming the
// principal, the sidebar of the routes they may enter, and the route itself.
type Layout struct {
	appName string
	router  *Router
	store   kv.Store
	logger  core.Logger

	mu    sync.Mutex
	state layoutState
}

// NewLayout restores the layout state from store. An unreadable state is ignored.
func NewLayout(ctx context.Context, appName string, router *Router, store kv.Store, logger core.Logger) *Layout {
	l := &Layout{appName: appName, router: router, store: store, logger: logger}

	data, err := store.Get(ctx, LayoutKey)
	switch {
	case err == nil:
		if err = json.Unmarshal(data, &l.state); err != nil {
			logger.Warn("ignoring malformed layout state", err)
			l.state = layoutState{}
		}
	case !errors.Is(err, kv.ErrNotFound):
		logger.Warn(fmt.Sprintf("loading layout state: %v", err), err)
	}
	return l
}

func (l *Layout) Collapsed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.SidebarCollapsed
}

// SetCollapsed changes and persists the sidebar state.
func (l *Layout) SetCollapsed(ctx context.Context, collapsed bool) error {
	l.mu.Lock()
	l.state.SidebarCollapsed = collapsed
	data, err := json.Marshal(l.state)
	l.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "encoding layout state")
	}
	return errors.Wrap(l.store.Set(ctx, LayoutKey, data), "saving layout state")
}

// ToggleSidebar flips the sidebar and returns the new collapsed state.
func (l *Layout) ToggleSidebar(ctx context.Context) (bool, error) {
	collapsed := !l.Collapsed()
	return collapsed, l.SetCollapsed(ctx, collapsed)
}

// Sidebar lists the menu routes the current principal may enter, by path.
func (l *Layout) Sidebar() []MenuItem {
	p := l.router.Session().Current()
	cur := l.router.Current()

	var items []MenuItem
	for i := range l.router.routes {
		r := &l.router.routes[i]
		if !r.Menu || !l.router.Allowed(p, r) {
			continue
		}
		items = append(items, MenuItem{Path: r.Path, Title: r.Title, Active: cur.Route == r})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items
}

// Render navigates to path and writes the page. The protected route is only
// rendered when the guard allows it; otherwise the redirect target is.
func (l *Layout) Render(ctx context.Context, w io.Writer, path string) (Outcome, error) {
	out := l.router.Navigate(ctx, path)

	if err := l.header(w, out); err != nil {
		return out, err
	}
	if out.Principal != nil {
		if err := l.sidebar(w); err != nil {
			return out, err
		}
	}

	if out.NotFound() {
		_, err := fmt.Fprintf(w, "\n%s: page not found\n", out.Path)
		return out, err
	}
	if out.Redirected() {
		if _, err := fmt.Fprintf(w, "\n(redirected from %s)\n", out.Requested); err != nil {
			return out, err
		}
	}
	if _, err := fmt.Fprintf(w, "\n== %s ==\n", out.Route.Title); err != nil {
		return out, err
	}
	if out.Route.Render == nil {
		return out, nil
	}
	return out, out.Route.Render(ctx, w, Request{Path: out.Path, Route: out.Route, Principal: out.Principal})
}

func (l *Layout) header(w io.Writer, out Outcome) error {
	who := "not logged in"
	if p := out.Principal; p != nil {
		name := p.Name
		if name == "" {
			name = p.Email
		}
		who = fmt.Sprintf("%s <%s> (%s)", name, p.Email, p.Role.Name())
	}
	_, err := fmt.Fprintf(w, "%s | %s | %s\n", l.appName, out.Path, who)
	return err
}

func (l *Layout) sidebar(w io.Writer) error {
	if l.Collapsed() {
		_, err := fmt.Fprintln(w, "[menu]")
		return err
	}
	var b strings.Builder
	for _, item := range l.Sidebar() {
		marker := " "
		if item.Active {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %-24s %s\n", marker, item.Path, item.Title)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
