package session

import (
	"context"
	"errors"
	"sync"
)

var ErrNotSignedIn = errors.New("no user logged in")

// SignUpRequest carries the fields needed to provision a user and its
// role-specific profile row.
type SignUpRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     Role    `json:"role"`
	Profile  Profile `json:"profile"`

	// SecretCode proves membership of Profile.OrganizationID.
	SecretCode string `json:"secret_code,omitempty"`
}

// Authenticator is the identity backend behind a Provider.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	PatientSignIn(ctx context.Context, mrn, dateOfBirth string) (*Session, error)
	SignUp(ctx context.Context, req SignUpRequest) (*Session, error)
	SignOut(ctx context.Context, s *Session) error
	UpdateProfile(ctx context.Context, s *Session, p Profile) (Profile, error)
}

type EventType string

const (
	SignedIn       EventType = "signed_in"
	SignedOut      EventType = "signed_out"
	ProfileUpdated EventType = "profile_updated"
)

type Event struct {
	Type    EventType
	Session *Session
}

const subscriberBuffer = 8

// Provider is the single owner of the current session for a long-lived
// client such as the CLI. Every change is fanned out to subscribers.
// Requests already holding a token keep it after Logout.
type Provider struct {
	auth Authenticator

	mu      sync.RWMutex
	current *Session
	subs    map[int]chan Event
	nextSub int
}

func NewProvider(auth Authenticator) *Provider {
	return &Provider{auth: auth, subs: make(map[int]chan Event)}
}

// Current returns a copy of the active session.
func (p *Provider) Current() (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil, false
	}
	cp := *p.current
	return &cp, true
}

func (p *Provider) Login(ctx context.Context, email, password string) (*Session, error) {
	s, err := p.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	p.set(s, SignedIn)
	return s, nil
}

func (p *Provider) PatientLogin(ctx context.Context, mrn, dateOfBirth string) (*Session, error) {
	s, err := p.auth.PatientSignIn(ctx, mrn, dateOfBirth)
	if err != nil {
		return nil, err
	}
	p.set(s, SignedIn)
	return s, nil
}

// Signup provisions the account. The new user is not signed in.
func (p *Provider) Signup(ctx context.Context, req SignUpRequest) (*Session, error) {
	return p.auth.SignUp(ctx, req)
}

func (p *Provider) Logout(ctx context.Context) error {
	p.mu.RLock()
	cur := p.current
	p.mu.RUnlock()
	if cur == nil {
		return nil
	}
	if err := p.auth.SignOut(ctx, cur); err != nil {
		return err
	}
	p.set(nil, SignedOut)
	return nil
}

func (p *Provider) UpdateProfile(ctx context.Context, prof Profile) (*Session, error) {
	cur, ok := p.Current()
	if !ok {
		return nil, ErrNotSignedIn
	}
	updated, err := p.auth.UpdateProfile(ctx, cur, prof)
	if err != nil {
		return nil, err
	}
	cur.Profile = updated
	p.set(cur, ProfileUpdated)
	return cur, nil
}

// Token returns the access token of the current session, or "" when signed out.
func (p *Provider) Token(ctx context.Context) (string, error) {
	s, ok := p.Current()
	if !ok {
		return "", nil
	}
	return s.AccessToken, nil
}

// Subscribe registers for session events. Slow subscribers miss events
// rather than block the provider. cancel closes the channel.
func (p *Provider) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (p *Provider) set(s *Session, typ EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s

	var snapshot *Session
	if s != nil {
		cp := *s
		snapshot = &cp
	}
	for _, ch := range p.subs {
		select {
		case ch <- Event{Type: typ, Session: snapshot}:
		default:
		}
	}
}
