package nav

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsite/client/session"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/storage/kv"
	"github.com/trezcool/schoolsite/tests"
)

var errBadCredentials = errors.New("authentication failed")

type users map[string]*auth.Principal

func (u users) Login(_ context.Context, email, password string) (*auth.Principal, error) {
	p, ok := u[email]
	if !ok || password != "secret" {
		return nil, errBadCredentials
	}
	cp := *p
	return &cp, nil
}

var accounts = users{
	"admin@x.id": {ID: "1", Email: "admin@x.id", Name: "Admin", Role: auth.RoleAdmin, Token: "t-admin"},
	"guru@x.id":  {ID: "2", Email: "guru@x.id", Name: "Guru", Role: auth.RoleGuru, Token: "t-guru"},
	"user@x.id":  {ID: "3", Email: "user@x.id", Name: "User", Role: auth.RoleUser, Token: "t-user"},
}

type fixture struct {
	store   *kv.MemoryStore
	session *session.Context
	router  *Router
	changes []Outcome
	renders map[string]int
}

func setup(t *testing.T, mismatch auth.MismatchPolicy) *fixture {
	conf := testutil.Config(t)
	logger := testutil.Logger(conf)
	f := &fixture{store: kv.NewMemoryStore(), renders: map[string]int{}}
	f.session = session.NewContext(context.Background(), session.NewStore(f.store, logger), accounts, logger)

	count := func(ctx context.Context, w io.Writer, req Request) error {
		f.renders[req.Route.Path]++
		_, err := io.WriteString(w, "content of "+req.Path+"\n")
		return err
	}
	routes := AdminRoutes(content.Kinds(), Views{
		Home: count, Login: count, Dashboard: count, Users: count,
		Kind: func(content.Kind) RenderFunc { return count },
	})

	var err error
	f.router, err = NewRouter(f.session, routes, RouterOptions{
		Guard:      AdminGuard(mismatch),
		AfterLogin: DashboardPath,
		OnChange:   func(o Outcome) { f.changes = append(f.changes, o) },
	})
	require.NoError(t, err)
	t.Cleanup(f.router.Close)
	return f
}

func (f *fixture) login(t *testing.T, email string) {
	_, err := f.session.Login(context.Background(), session.LoginInput{Email: email, Password: "secret"})
	require.NoError(t, err)
}

func TestRouter_Anonymous(t *testing.T) {
	f := setup(t, auth.MismatchLogin)
	ctx := context.Background()

	for _, r := range f.router.Routes() {
		out := f.router.Navigate(ctx, r.Path)
		if r.Public {
			assert.Equal(t, r.Path, out.Path)
			continue
		}
		assert.Equal(t, LoginPath, out.Path, r.Path)
		assert.Equal(t, auth.RedirectLogin, out.Verdict.Decision, r.Path)
		assert.Equal(t, r.Path, f.router.ReturnTo(), r.Path)
	}
}

func TestRouter_CompleteLogin(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		attempted string
		email     string
		wantPath  string
	}{
		{name: "back to the attempted page", attempted: "/admin/news", email: "guru@x.id", wantPath: "/admin/news"},
		{name: "sub path is kept", attempted: "/admin/news/12/", email: "guru@x.id", wantPath: "/admin/news/12"},
		{name: "nothing remembered", attempted: "", email: "admin@x.id", wantPath: DashboardPath},
		{name: "remembered page still forbidden", attempted: "/admin/users", email: "guru@x.id", wantPath: LoginPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, auth.MismatchLogin)
			if tt.attempted != "" {
				require.Equal(t, LoginPath, f.router.Navigate(ctx, tt.attempted).Path)
			}

			out, err := f.router.CompleteLogin(ctx, session.LoginInput{Email: tt.email, Password: "secret"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, out.Path)
		})
	}

	t.Run("failure keeps the remembered path", func(t *testing.T) {
		f := setup(t, auth.MismatchLogin)
		f.router.Navigate(ctx, "/admin/gallery")

		out, err := f.router.CompleteLogin(ctx, session.LoginInput{Email: "guru@x.id", Password: "lol"})
		assert.ErrorIs(t, err, errBadCredentials)
		assert.Equal(t, LoginPath, out.Path)
		assert.Equal(t, "/admin/gallery", f.router.ReturnTo())
		assert.Nil(t, f.session.Current())
	})

	t.Run("browsing away forgets the remembered path", func(t *testing.T) {
		f := setup(t, auth.MismatchLogin)
		f.router.Navigate(ctx, "/admin/gallery")
		require.Equal(t, "/admin/gallery", f.router.ReturnTo())

		f.router.Navigate(ctx, LoginPath)
		assert.Equal(t, "/admin/gallery", f.router.ReturnTo(), "the login page keeps it")
		f.router.Navigate(ctx, "/nowhere")
		assert.Equal(t, "/admin/gallery", f.router.ReturnTo(), "unknown pages keep it")

		assert.Equal(t, HomePath, f.router.Navigate(ctx, HomePath).Path)
		assert.Empty(t, f.router.ReturnTo())

		out, err := f.router.CompleteLogin(ctx, session.LoginInput{Email: "guru@x.id", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, DashboardPath, out.Path)
	})
}

func TestRouter_Roles(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		mismatch auth.MismatchPolicy
		path     string
		wantPath string
	}{
		{name: "guru on admin only page", email: "guru@x.id", path: UsersPath, wantPath: LoginPath},
		{name: "guru on staff page", email: "guru@x.id", path: "/admin/announcement", wantPath: "/admin/announcement"},
		{name: "guru on admin content", email: "guru@x.id", path: "/admin/teacher", wantPath: LoginPath},
		{name: "admin everywhere", email: "admin@x.id", path: "/admin/profile", wantPath: "/admin/profile"},
		{name: "user on dashboard", email: "user@x.id", path: DashboardPath, wantPath: LoginPath},
		{name: "mismatch sent home", email: "guru@x.id", mismatch: auth.MismatchHome, path: UsersPath, wantPath: HomePath},
		{name: "guarded sub path", email: "guru@x.id", path: "/admin/teacher/4", wantPath: LoginPath},
		{name: "singleton has no sub paths", email: "admin@x.id", path: "/admin/history/1", wantPath: "/admin/history/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.mismatch)
			f.login(t, tt.email)

			out := f.router.Navigate(ctx, tt.path)
			assert.Equal(t, tt.wantPath, out.Path)
		})
	}

	t.Run("unknown path", func(t *testing.T) {
		f := setup(t, auth.MismatchLogin)
		f.login(t, "admin@x.id")
		assert.True(t, f.router.Navigate(ctx, "/admin/history/1").NotFound())
	})
}

func TestRouter_ReevaluatesOnPrincipalChange(t *testing.T) {
	ctx := context.Background()
	f := setup(t, auth.MismatchLogin)
	f.login(t, "guru@x.id")

	require.Equal(t, "/admin/news", f.router.Navigate(ctx, "/admin/news").Path)
	f.changes = nil

	require.NoError(t, f.session.Logout(ctx))
	require.Len(t, f.changes, 1)
	assert.Equal(t, LoginPath, f.changes[0].Path)
	assert.Equal(t, LoginPath, f.router.Current().Path)
	assert.Equal(t, "/admin/news", f.router.ReturnTo())

	// a token rejected by the backend has the same effect
	f.login(t, "guru@x.id")
	f.router.Navigate(ctx, "/admin/gallery")
	f.session.Invalidate(ctx)
	assert.Equal(t, LoginPath, f.router.Current().Path)
}

func TestNewRouter_DuplicateRoute(t *testing.T) {
	conf := testutil.Config(t)
	sc := session.NewContext(context.Background(), session.NewStore(kv.NewMemoryStore(), testutil.Logger(conf)), nil, testutil.Logger(conf))
	_, err := NewRouter(sc, []Route{{Path: "/a"}, {Path: "/a/"}}, RouterOptions{})
	assert.EqualError(t, err, `duplicate route "/a"`)
}

func TestLayout_Sidebar(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		email string
		want  []string
	}{
		{email: "", want: nil},
		{email: "user@x.id", want: nil},
		{email: "guru@x.id", want: []string{"/admin", "/admin/achievement", "/admin/announcement", "/admin/gallery", "/admin/news"}},
		{email: "admin@x.id", want: []string{
			"/admin", "/admin/achievement", "/admin/announcement", "/admin/gallery", "/admin/headmaster",
			"/admin/history", "/admin/news", "/admin/parent", "/admin/profile", "/admin/program",
			"/admin/slider", "/admin/student", "/admin/teacher", "/admin/users",
		}},
	}
	for _, tt := range tests {
		t.Run("as "+tt.email, func(t *testing.T) {
			f := setup(t, auth.MismatchLogin)
			if tt.email != "" {
				f.login(t, tt.email)
			}
			l := NewLayout(ctx, "Sekolah", f.router, f.store, testutil.Logger(testutil.Config(t)))

			var got []string
			for _, item := range l.Sidebar() {
				got = append(got, item.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayout_Render(t *testing.T) {
	ctx := context.Background()
	f := setup(t, auth.MismatchLogin)
	l := NewLayout(ctx, "Sekolah", f.router, f.store, testutil.Logger(testutil.Config(t)))

	t.Run("denied route is not rendered", func(t *testing.T) {
		f.login(t, "guru@x.id")
		var buf bytes.Buffer
		out, err := l.Render(ctx, &buf, UsersPath)
		require.NoError(t, err)

		assert.Equal(t, LoginPath, out.Path)
		assert.Zero(t, f.renders[UsersPath])
		assert.Equal(t, 1, f.renders[LoginPath])
		assert.Contains(t, buf.String(), "(redirected from /admin/users)")
	})

	t.Run("allowed route", func(t *testing.T) {
		var buf bytes.Buffer
		out, err := l.Render(ctx, &buf, "/admin/news/3")
		require.NoError(t, err)

		assert.Equal(t, "/admin/news/3", out.Path)
		assert.Equal(t, 1, f.renders["/admin/news"])
		s := buf.String()
		assert.Contains(t, s, "Sekolah | /admin/news/3 | Guru <guru@x.id> (Guru)")
		assert.Contains(t, s, "> /admin/news")
		assert.Contains(t, s, "== News ==")
		assert.Contains(t, s, "content of /admin/news/3")
		assert.NotContains(t, s, "/admin/users")
	})

	t.Run("not found", func(t *testing.T) {
		var buf bytes.Buffer
		out, err := l.Render(ctx, &buf, "/lol")
		require.NoError(t, err)
		assert.True(t, out.NotFound())
		assert.Contains(t, buf.String(), "/lol: page not found")
	})
}

func TestLayout_CollapsedState(t *testing.T) {
	ctx := context.Background()
	f := setup(t, auth.MismatchLogin)
	logger := testutil.Logger(testutil.Config(t))
	f.login(t, "admin@x.id")

	l := NewLayout(ctx, "Sekolah", f.router, f.store, logger)
	assert.False(t, l.Collapsed())

	collapsed, err := l.ToggleSidebar(ctx)
	require.NoError(t, err)
	assert.True(t, collapsed)

	var buf bytes.Buffer
	_, err = l.Render(ctx, &buf, DashboardPath)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[menu]")
	assert.NotContains(t, buf.String(), "/admin/news")

	// independent from the session: survives logout and reload
	require.NoError(t, f.session.Logout(ctx))
	assert.True(t, NewLayout(ctx, "Sekolah", f.router, f.store, logger).Collapsed())

	t.Run("malformed state", func(t *testing.T) {
		require.NoError(t, f.store.Set(ctx, LayoutKey, []byte("{lol")))
		assert.False(t, NewLayout(ctx, "Sekolah", f.router, f.store, logger).Collapsed())
	})
}
