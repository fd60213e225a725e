package auth

import (
	"context"
	"sync"
)

// Provider reports the current identity of this client and announces changes.
type Provider interface {
	// Current returns the signed-in identity, or nil when signed out.
	Current() *Identity
	// Watch calls fn with every subsequent identity change until the returned
	// function is called.
	Watch(fn func(*Identity)) (unwatch func())
}

// watchers is the change fan-out shared by providers.
type watchers struct {
	mu      sync.Mutex
	current *Identity
	next    int
	fns     map[int]func(*Identity)
}

func (w *watchers) Current() *Identity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	id := *w.current
	return &id
}

func (w *watchers) Watch(fn func(*Identity)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(*Identity))
	}
	w.next++
	key := w.next
	w.fns[key] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.fns, key)
	}
}

func (w *watchers) set(id *Identity) {
	w.mu.Lock()
	w.current = id
	fns := make([]func(*Identity), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		if id == nil {
			fn(nil)
			continue
		}
		copied := *id
		fn(&copied)
	}
}

// Static is a Provider whose identity is set directly. Simulations and
// tests use it; SignOut and SetIdentity notify watchers.
type Static struct {
	watchers
}

// NewStatic returns a provider signed in as id (nil for signed out).
func NewStatic(id *Identity) *Static {
	s := &Static{}
	s.current = id
	return s
}

// SetIdentity switches the signed-in user.
func (s *Static) SetIdentity(id *Identity) {
	s.set(id)
}

// SignOut clears the identity.
func (s *Static) SignOut() {
	s.set(nil)
}

// HTTPProvider signs in by exchanging a token with a Validator, usually an
// HTTPValidator in front of the identity service.
type HTTPProvider struct {
	watchers
	validator Validator
}

// NewHTTPProvider returns a signed-out provider backed by validator.
func NewHTTPProvider(validator Validator) *HTTPProvider {
	return &HTTPProvider{validator: validator}
}

// SignIn validates token and makes its identity current. On failure the
// provider is left signed out.
func (p *HTTPProvider) SignIn(ctx context.Context, token string) (*Identity, error) {
	id, err := p.validator.Validate(ctx, token)
	if err != nil {
		p.set(nil)
		return nil, err
	}
	if id == nil {
		p.set(nil)
		return nil, ErrInvalidToken
	}
	p.set(id)
	return p.Current(), nil
}

// SignOut clears the identity.
func (p *HTTPProvider) SignOut() {
	p.set(nil)
}
