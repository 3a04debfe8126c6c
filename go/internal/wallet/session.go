package wallet

import (
	"sync"
)

// LocalSession is an in-process authentication provider. It is ready once
// created and exposes the registered wallets while logged in.
type LocalSession struct {
	mu            sync.RWMutex
	ready         bool
	authenticated bool
	wallets       []Wallet
	listeners     []func()
}

func NewLocalSession(wallets ...Wallet) *LocalSession {
	return &LocalSession{ready: true, wallets: wallets}
}

func (s *LocalSession) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *LocalSession) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Wallets returns the usable wallets; none while logged out.
func (s *LocalSession) Wallets() []Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated {
		return nil
	}
	return append([]Wallet(nil), s.wallets...)
}

func (s *LocalSession) Login() { s.setAuthenticated(true) }

func (s *LocalSession) Logout() { s.setAuthenticated(false) }

// SetWallets replaces the registered wallets.
func (s *LocalSession) SetWallets(wallets ...Wallet) {
	s.mu.Lock()
	s.wallets = wallets
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnChange registers fn to run after every login, logout or wallet change.
func (s *LocalSession) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *LocalSession) setAuthenticated(v bool) {
	s.mu.Lock()
	changed := s.authenticated != v
	s.authenticated = v
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range listeners {
		fn()
	}
}
