// Package localprovider is an in-process identity provider. It backs the
// daemon in development and offline setups and drives the session tests.
package localprovider

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
)

// MinPasswordLength mirrors the Firebase rule.
const MinPasswordLength = 6

type account struct {
	uid          string
	email        string
	passwordHash []byte
	disabled     bool
}

// Provider keeps accounts in memory.
type Provider struct {
	mu             sync.Mutex
	accounts       map[string]*account
	failedAttempts map[string]int
	maxFailures    int
	bcryptCost     int
	validate       *validator.Validate
	emitter        identity.Emitter
}

type Option func(*Provider)

// WithMaxFailedAttempts locks an email after n wrong passwords; 0 disables the limit.
func WithMaxFailedAttempts(n int) Option {
	return func(p *Provider) {
		p.maxFailures = n
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		p.bcryptCost = cost
	}
}

func New(options ...Option) *Provider {
	p := &Provider{
		accounts:       map[string]*account{},
		failedAttempts: map[string]int{},
		maxFailures:    5,
		bcryptCost:     bcrypt.DefaultCost,
		validate:       validator.New(),
	}
	for _, option := range options {
		option(p)
	}

	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) checkEmail(email string) error {
	if err := p.validate.Var(email, "required,email"); err != nil {
		return identity.NewError(identity.CodeInvalidEmail, err)
	}
	return nil
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if err := p.checkEmail(email); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, identity.NewError(identity.CodeWeakPassword, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, identity.NewError(identity.CodeInternalError, err)
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, identity.NewError(identity.CodeEmailAlreadyInUse, nil)
	}
	acc := &account{
		uid:          uuid.NewString(),
		email:        email,
		passwordHash: hash,
	}
	p.accounts[email] = acc
	p.mu.Unlock()

	signedIn := &identity.Identity{Email: acc.email, UID: acc.uid}
	p.emitter.Set(signedIn)

	return signedIn.Clone(), nil
}

// SignIn checks the password and signs the account in.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if err := p.checkEmail(email); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acc, exists := p.accounts[email]
	if !exists {
		p.mu.Unlock()
		return nil, identity.NewError(identity.CodeUserNotFound, nil)
	}
	if p.maxFailures > 0 && p.failedAttempts[email] >= p.maxFailures {
		p.mu.Unlock()
		return nil, identity.NewError(identity.CodeTooManyRequests, nil)
	}
	if acc.disabled {
		p.mu.Unlock()
		return nil, identity.NewError(identity.CodeUserDisabled, nil)
	}
	hash := acc.passwordHash
	p.mu.Unlock()

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, identity.NewError(identity.CodeInternalError, err)
		}
		p.mu.Lock()
		p.failedAttempts[email]++
		p.mu.Unlock()
		return nil, identity.NewError(identity.CodeWrongPassword, nil)
	}

	p.mu.Lock()
	delete(p.failedAttempts, email)
	p.mu.Unlock()

	signedIn := &identity.Identity{Email: acc.email, UID: acc.uid}
	p.emitter.Set(signedIn)

	return signedIn.Clone(), nil
}

// SignOut forgets the signed-in identity.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.emitter.Set(nil)

	return nil
}

func (p *Provider) OnChange(callback func(*identity.Identity)) (func(), error) {
	return p.emitter.Subscribe(callback), nil
}

// DisableAccount blocks further sign-ins and, when the account is the signed-in
// one, revokes it the way a server-side disable does.
func (p *Provider) DisableAccount(email string) error {
	email = normalizeEmail(email)

	p.mu.Lock()
	acc, exists := p.accounts[email]
	if !exists {
		p.mu.Unlock()
		return identity.NewError(identity.CodeUserNotFound, nil)
	}
	acc.disabled = true
	uid := acc.uid
	p.mu.Unlock()

	if current := p.emitter.Current(); current != nil && current.UID == uid {
		p.emitter.Set(nil)
	}

	return nil
}

// Current returns the signed-in identity, if any.
func (p *Provider) Current() *identity.Identity {
	return p.emitter.Current()
}
