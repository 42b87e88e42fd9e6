// Package session holds the authenticated staff member and the selected
// branch of this workstation, persisted across restarts.
//
// A Session must be hydrated from storage before use. Until then every
// reader gets ErrNotHydrated, which is distinct from "hydrated, nothing
// stored". Code that gates on "is a branch selected" calls Wait first.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/auth"
	"github.com/kiwari-pos/terminal/internal/kv"
	log "github.com/sirupsen/logrus"
)

const (
	keyUser   = "session:user"
	keyBranch = "session:branch"
	keyToken  = "session:token"
)

var (
	ErrNotHydrated = errors.New("session not hydrated")
	ErrNoUser      = errors.New("no user signed in")
	ErrNoBranch    = errors.New("no branch selected")
)

type User struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

type Branch struct {
	ID       uuid.UUID `json:"branch_id"`
	Name     string    `json:"branch_name"`
	Location string    `json:"location"`
}

type Session struct {
	kv  kv.Store
	now func() time.Time

	once       sync.Once
	hydrated   chan struct{}
	hydrateErr error

	mu     sync.RWMutex
	user   *User
	branch *Branch
	token  string
}

func New(store kv.Store) *Session {
	return &Session{kv: store, now: time.Now, hydrated: make(chan struct{})}
}

// Hydrate loads the persisted session once. Corrupt or expired entries are
// purged. The session is marked hydrated even when storage fails, so
// waiters never hang; the storage error is returned.
func (s *Session) Hydrate(ctx context.Context) error {
	s.once.Do(func() {
		s.hydrateErr = s.load(ctx)
		close(s.hydrated)
	})
	return s.hydrateErr
}

func (s *Session) load(ctx context.Context) error {
	var errs []error

	user, token, err := s.loadUser(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	branch, err := s.loadBranch(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	s.user, s.token, s.branch = user, token, branch
	s.mu.Unlock()
	return errors.Join(errs...)
}

func (s *Session) loadUser(ctx context.Context) (*User, string, error) {
	raw, ok, err := s.kv.Get(ctx, keyUser)
	if err != nil || !ok {
		return nil, "", err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == uuid.Nil {
		log.Warn("session: purging corrupt user entry")
		return nil, "", s.purge(ctx, keyUser, keyToken)
	}

	token, ok, err := s.kv.Get(ctx, keyToken)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		log.Warn("session: user without token, purging")
		return nil, "", s.purge(ctx, keyUser)
	}
	claims, err := auth.ParseUnverified(token)
	if err != nil || claims.UserID != u.ID ||
		(claims.ExpiresAt != nil && !claims.ExpiresAt.Time.After(s.now())) {
		log.Info("session: stored token is invalid or expired, signing out")
		return nil, "", s.purge(ctx, keyUser, keyToken)
	}
	return &u, token, nil
}

func (s *Session) loadBranch(ctx context.Context) (*Branch, error) {
	raw, ok, err := s.kv.Get(ctx, keyBranch)
	if err != nil || !ok {
		return nil, err
	}
	var b Branch
	if err := json.Unmarshal([]byte(raw), &b); err != nil || b.ID == uuid.Nil {
		log.Warn("session: purging corrupt branch entry")
		return nil, s.purge(ctx, keyBranch)
	}
	return &b, nil
}

func (s *Session) purge(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until hydration completes or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Hydrated() bool {
	select {
	case <-s.hydrated:
		return true
	default:
		return false
	}
}

// User returns the signed-in staff member, ErrNotHydrated or ErrNoUser.
func (s *Session) User() (User, error) {
	if !s.Hydrated() {
		return User{}, ErrNotHydrated
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, ErrNoUser
	}
	return *s.user, nil
}

// Token returns the bearer token of the signed-in user.
func (s *Session) Token() (string, error) {
	if _, err := s.User(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Branch returns the selected branch, ErrNotHydrated or ErrNoBranch.
func (s *Session) Branch() (Branch, error) {
	if !s.Hydrated() {
		return Branch{}, ErrNotHydrated
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.branch == nil {
		return Branch{}, ErrNoBranch
	}
	return *s.branch, nil
}

// SignIn persists the user and token, replacing any previous sign-in.
func (s *Session) SignIn(ctx context.Context, u User, token string) error {
	if !s.Hydrated() {
		return ErrNotHydrated
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyUser, string(raw)); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyToken, token); err != nil {
		return err
	}
	s.mu.Lock()
	s.user, s.token = &u, token
	s.mu.Unlock()
	return nil
}

func (s *Session) SelectBranch(ctx context.Context, b Branch) error {
	if !s.Hydrated() {
		return ErrNotHydrated
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyBranch, string(raw)); err != nil {
		return err
	}
	s.mu.Lock()
	s.branch = &b
	s.mu.Unlock()
	return nil
}

// Clear signs out: user, branch and token are removed from memory and storage.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.user, s.branch, s.token = nil, nil, ""
	s.mu.Unlock()
	return s.purge(ctx, keyUser, keyBranch, keyToken)
}
