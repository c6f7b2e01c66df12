package service

import (
	"sync"

	"github.com/okian/songsort/internal/adapters/repository"
)

// Scope carries one owner's session consistency token. Every store call made
// on the owner's behalf reads the token first and observes the token the
// store returns, so later reads see earlier writes. All sessions of an
// owner share one Scope.
type Scope struct {
	mu    sync.Mutex
	owner string
	token repository.Token
}

func newScope(owner string) *Scope {
	return &Scope{owner: owner}
}

// Owner returns the owner the scope belongs to.
func (s *Scope) Owner() string { return s.owner }

// Token returns the newest token observed so far. It is empty until the
// first store call returns.
func (s *Scope) Token() repository.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Observe keeps the newest of the current token and toks. It never moves
// the token backwards.
func (s *Scope) Observe(toks ...repository.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = repository.Latest(append(toks, s.token)...)
}

// scopes is the service's owner -> Scope registry.
type scopes struct {
	mu sync.Mutex
	m  map[string]*Scope
}

func (r *scopes) get(owner string) *Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[string]*Scope)
	}
	sc, ok := r.m[owner]
	if !ok {
		sc = newScope(owner)
		r.m[owner] = sc
	}
	return sc
}

func (r *scopes) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
