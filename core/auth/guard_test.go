package auth

import (
	"testing"
)

func TestGuard_Evaluate(t *testing.T) {
	admin := &Principal{ID: "1", Email: "admin@test.id", Role: RoleAdmin, Token: "a"}
	guru := &Principal{ID: "2", Email: "guru@test.id", Role: RoleGuru, Token: "g"}
	usr := &Principal{ID: "3", Email: "user@test.id", Role: RoleUser, Token: "u"}

	adminOnly := Require("/admin/users", RoleAdmin)
	staff := Require("/admin/news", RoleAdmin, RoleGuru)
	anyAuthed := Require("/admin")

	tests := []struct {
		name   string
		guard  Guard
		p      *Principal
		req    Requirement
		want   Verdict
	}{
		{
			name: "anonymous redirected to login with return path", p: nil, req: staff,
			want: Verdict{Decision: RedirectLogin, Redirect: "/login", ReturnTo: "/admin/news"},
		},
		{
			name: "anonymous on any-authenticated route", p: nil, req: anyAuthed,
			want: Verdict{Decision: RedirectLogin, Redirect: "/login", ReturnTo: "/admin"},
		},
		{
			name: "guru on admin-only route goes to login", p: guru, req: adminOnly,
			want: Verdict{Decision: RedirectLogin, Redirect: "/login", ReturnTo: "/admin/users"},
		},
		{name: "guru on staff route allowed", p: guru, req: staff, want: Verdict{Decision: Allow}},
		{name: "admin on admin-only route allowed", p: admin, req: adminOnly, want: Verdict{Decision: Allow}},
		{name: "user on any-authenticated route allowed", p: usr, req: anyAuthed, want: Verdict{Decision: Allow}},
		{
			name: "home policy sends mismatch home", guard: Guard{Mismatch: MismatchHome}, p: usr, req: staff,
			want: Verdict{Decision: RedirectHome, Redirect: "/"},
		},
		{
			name: "home policy still sends anonymous to login", guard: Guard{Mismatch: MismatchHome}, p: nil, req: staff,
			want: Verdict{Decision: RedirectLogin, Redirect: "/login", ReturnTo: "/admin/news"},
		},
		{
			name: "custom paths", guard: Guard{LoginPath: "/masuk", HomePath: "/beranda", Mismatch: MismatchHome}, p: guru, req: adminOnly,
			want: Verdict{Decision: RedirectHome, Redirect: "/beranda"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.guard.Evaluate(tt.p, tt.req); got != tt.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGuard_NeverAllowsUnlistedRole(t *testing.T) {
	requirements := [][]Role{
		{RoleAdmin},
		{RoleGuru},
		{RoleUser},
		{RoleAdmin, RoleGuru},
		{RoleGuru, RoleUser},
	}
	for _, policy := range []MismatchPolicy{MismatchLogin, MismatchHome} {
		guard := Guard{Mismatch: policy}
		for _, allowed := range requirements {
			req := Require("/x", allowed...)
			for _, role := range AllRoles {
				p := &Principal{ID: "id", Role: role}
				got := guard.Evaluate(p, req)
				if got.Allowed() != req.Admits(role) {
					t.Errorf("policy %d: role %q on %v: allowed = %v", policy, role, allowed, got.Allowed())
				}
			}
		}
	}
}

func TestAuthorize(t *testing.T) {
	if err := Authorize(nil, Require("/x")); err != ErrUnauthenticated {
		t.Errorf("Authorize(nil) = %v, want %v", err, ErrUnauthenticated)
	}
	if err := Authorize(&Principal{Role: RoleUser}, Require("/x", RoleAdmin)); err != ErrForbidden {
		t.Errorf("Authorize(user) = %v, want %v", err, ErrForbidden)
	}
	if err := Authorize(&Principal{Role: RoleUser}, Require("/x")); err != nil {
		t.Errorf("Authorize(user, any) = %v, want nil", err)
	}
}

func TestRequire_CopiesRoles(t *testing.T) {
	roles := []Role{RoleAdmin}
	req := Require("/x", roles...)
	roles[0] = RoleUser
	if !req.Admits(RoleAdmin) || req.Admits(RoleUser) {
		t.Errorf("requirement changed after declaration: %v", req.AllowedRoles)
	}
}

func TestRole(t *testing.T) {
	if r, ok := ParseRole(" GURU "); !ok || r != RoleGuru {
		t.Errorf("ParseRole() = %q, %v", r, ok)
	}
	if _, ok := ParseRole("superuser"); ok {
		t.Error("ParseRole(superuser) should not be valid")
	}
	if !RoleAdmin.Outranks(RoleGuru) || RoleUser.Outranks(RoleGuru) {
		t.Error("unexpected role priorities")
	}

	roles := []Role{RoleUser, RoleAdmin, RoleGuru}
	SortRoles(roles)
	if roles[0] != RoleAdmin || roles[2] != RoleUser {
		t.Errorf("SortRoles() = %v", roles)
	}

	var nobody *Principal
	if nobody.HasRole(RoleAdmin) {
		t.Error("nil principal has no role")
	}
}
