package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrForbidden       = errors.New("permission denied")
)

// Requirement declares who may enter Path.
// A nil AllowedRoles admits any authenticated principal.
type Requirement struct {
	Path         string
	AllowedRoles []Role
}

// Require returns the requirement for path restricted to roles.
func Require(path string, roles ...Role) Requirement {
	if len(roles) == 0 {
		return Requirement{Path: path}
	}
	allowed := make([]Role, len(roles))
	copy(allowed, roles)
	return Requirement{Path: path, AllowedRoles: allowed}
}

// Admits reports whether role satisfies the requirement's role set.
func (req Requirement) Admits(role Role) bool {
	if req.AllowedRoles == nil {
		return true
	}
	for _, r := range req.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize checks p against req: ErrUnauthenticated without a principal,
// ErrForbidden when the role is not admitted.
func Authorize(p *Principal, req Requirement) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if !req.Admits(p.Role) {
		return ErrForbidden
	}
	return nil
}

type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	}
	return "unknown"
}

// MismatchPolicy selects where an authenticated principal with the wrong role is sent.
type MismatchPolicy int

const (
	MismatchLogin MismatchPolicy = iota
	MismatchHome
)

// Verdict is the outcome of a guard evaluation.
// ReturnTo is set when the caller should come back to the attempted path after login.
type Verdict struct {
	Decision Decision
	Redirect string
	ReturnTo string
}

func (v Verdict) Allowed() bool { return v.Decision == Allow }

// Guard decides navigation access. The zero value redirects to /login and / and
// sends role mismatches to the login page.
type Guard struct {
	LoginPath string
	HomePath  string
	Mismatch  MismatchPolicy
}

// Login is the login page path, /login unless set.
func (g Guard) Login() string {
	if g.LoginPath == "" {
		return "/login"
	}
	return g.LoginPath
}

func (g Guard) homePath() string {
	if g.HomePath == "" {
		return "/"
	}
	return g.HomePath
}

// Evaluate is a pure function of the principal and the requirement.
func (g Guard) Evaluate(p *Principal, req Requirement) Verdict {
	switch Authorize(p, req) {
	case nil:
		return Verdict{Decision: Allow}
	case ErrUnauthenticated:
		return Verdict{Decision: RedirectLogin, Redirect: g.Login(), ReturnTo: req.Path}
	default:
		if g.Mismatch == MismatchHome {
			return Verdict{Decision: RedirectHome, Redirect: g.homePath()}
		}
		return Verdict{Decision: RedirectLogin, Redirect: g.Login(), ReturnTo: req.Path}
	}
}
