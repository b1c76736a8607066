package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/client/apiclient"
	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
)

// Authenticator exchanges login credentials for a principal.
// *apiclient.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Principal, error)
}

type LoginInput struct {
	Email    string
	Password string
}

type listener struct {
	id int
	fn func(*auth.Principal)
}

// Context is the single source of truth for who is logged in. It is mutated
// through Login, Logout and Invalidate only.
type Context struct {
	store  *Store
	authn  Authenticator
	logger core.Logger

	mu        sync.RWMutex
	principal *auth.Principal

	lmu       sync.Mutex
	listeners []listener
	nextID    int
}

// NewContext restores the principal saved in store.
func NewContext(ctx context.Context, store *Store, authn Authenticator, logger core.Logger) *Context {
	return &Context{
		store:     store,
		authn:     authn,
		logger:    logger,
		principal: store.Load(ctx),
	}
}

// SetAuthenticator sets the authenticator when it is built after the context,
// as the API client is.
func (c *Context) SetAuthenticator(authn Authenticator) {
	c.mu.Lock()
	c.authn = authn
	c.mu.Unlock()
}

// Current returns the in-memory principal, nil when logged out. The token it
// carries may have been revoked since: only the backend can tell.
func (c *Context) Current() *auth.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	return &p
}

// Credentials returns what API requests should carry for the current session.
func (c *Context) Credentials() apiclient.Credentials {
	if p := c.Current(); p != nil && p.Token != "" {
		return apiclient.Bearer{Token: p.Token}
	}
	return apiclient.Anonymous{}
}

// Login authenticates, saves the session and makes it current. On failure the
// state is left untouched and the error is returned as is.
func (c *Context) Login(ctx context.Context, in LoginInput) (*auth.Principal, error) {
	c.mu.RLock()
	authn := c.authn
	c.mu.RUnlock()
	if authn == nil {
		return nil, errors.New("logging in: no authenticator")
	}

	p, err := authn.Login(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if err = c.store.Save(ctx, p); err != nil {
		return nil, err
	}
	c.set(p)
	return c.Current(), nil
}

// Logout forgets the session. Calling it while logged out is a no-op.
// The in-memory principal is dropped even when the store cannot be cleared.
func (c *Context) Logout(ctx context.Context) error {
	err := c.store.Clear(ctx)
	c.set(nil)
	return err
}

// Invalidate ends a session the backend rejected.
func (c *Context) Invalidate(ctx context.Context) {
	if c.Current() == nil {
		return
	}
	if err := c.Logout(ctx); err != nil {
		c.logger.Warn("invalidating session", err)
	}
}

// Subscribe registers fn to run after every principal change. fn receives nil on logout.
func (c *Context) Subscribe(fn func(*auth.Principal)) (cancel func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Context) set(p *auth.Principal) {
	c.mu.Lock()
	changed := !samePrincipal(c.principal, p)
	c.principal = p
	c.mu.Unlock()
	if !changed {
		return
	}

	c.lmu.Lock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.lmu.Unlock()

	for _, l := range ls {
		var cp *auth.Principal
		if p != nil {
			pp := *p
			cp = &pp
		}
		l.fn(cp)
	}
}

func samePrincipal(a, b *auth.Principal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
