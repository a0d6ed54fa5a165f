// Package firebase talks to the Firebase Authentication REST API
// (Identity Toolkit and Secure Token endpoints) and keeps the resulting
// ID token fresh in the background.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
	"github.com/patric-chuzhbe/sanasto/internal/logger"
)

// Config points the provider at the Firebase project.
type Config struct {
	APIKey          string
	AuthURL         string
	TokenURL        string
	HTTPTimeout     time.Duration
	RefreshInterval time.Duration
	RefreshMargin   time.Duration
}

type tokenSet struct {
	idToken      string
	refreshToken string
	expiresAt    time.Time
	identity     identity.Identity
}

// Provider is a Firebase-backed identity.Provider.
type Provider struct {
	client  *resty.Client
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	tokens  *tokenSet
	emitter identity.Emitter
	stop    context.CancelFunc
	done    chan struct{}
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type credentialsResponse struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// New builds the provider. Call Run to start the token refresher.
func New(cfg Config) *Provider {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = 5 * time.Minute
	}

	client := resty.New().
		SetTimeout(cfg.HTTPTimeout).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", cfg.APIKey)

	return &Provider{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SignIn calls accounts:signInWithPassword.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	return p.exchangeCredentials(ctx, "/accounts:signInWithPassword", email, password)
}

// SignUp calls accounts:signUp.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*identity.Identity, error) {
	return p.exchangeCredentials(ctx, "/accounts:signUp", email, password)
}

// SignOut drops the tokens. Firebase has no server-side sign-out for password
// sessions, so nothing goes over the wire.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.tokens = nil
	p.mu.Unlock()

	p.emitter.Set(nil)

	return nil
}

func (p *Provider) OnChange(callback func(*identity.Identity)) (func(), error) {
	return p.emitter.Subscribe(callback), nil
}

// IDToken returns the current ID token, or "" when signed out.
func (p *Provider) IDToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokens == nil {
		return ""
	}
	return p.tokens.idToken
}

func (p *Provider) exchangeCredentials(
	ctx context.Context,
	path string,
	email string,
	password string,
) (*identity.Identity, error) {
	var result credentialsResponse
	var failure errorResponse

	response, err := p.client.R().
		SetContext(ctx).
		SetBody(credentialsRequest{
			Email:             email,
			Password:          password,
			ReturnSecureToken: true,
		}).
		SetResult(&result).
		SetError(&failure).
		Post(p.cfg.AuthURL + path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, identity.NewError(identity.CodeNetworkRequestFail, err)
	}
	if response.IsError() {
		return nil, identity.NewError(codeFromMessage(failure.Error.Message), errors.New(failure.Error.Message))
	}

	tokens, err := p.tokensFrom(result.IDToken, result.RefreshToken, result.ExpiresIn, result.LocalID, result.Email)
	if err != nil {
		return nil, identity.NewError(identity.CodeInternalError, err)
	}

	p.mu.Lock()
	p.tokens = tokens
	p.mu.Unlock()

	signedIn := tokens.identity
	p.emitter.Set(&signedIn)

	return &signedIn, nil
}

// tokensFrom prefers the ID token claims over the plain response fields.
// The token came straight from Google over TLS, so it is decoded, not verified.
func (p *Provider) tokensFrom(idToken, refreshToken, expiresIn, uid, email string) (*tokenSet, error) {
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("in internal/identity/firebase/firebase.go/tokensFrom(): error while `jwt.ParseUnverified()` calling: %w", err)
	}

	if claims.UserID != "" {
		uid = claims.UserID
	}
	if claims.Email != "" {
		email = claims.Email
	}
	if uid == "" {
		return nil, errors.New("the ID token carries no user id")
	}

	expiresAt := p.now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	} else if seconds, err := strconv.Atoi(expiresIn); err == nil {
		expiresAt = p.now().Add(time.Duration(seconds) * time.Second)
	}

	return &tokenSet{
		idToken:      idToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
		identity:     identity.Identity{Email: email, UID: uid},
	}, nil
}

// Run starts the background refresher. It returns immediately.
func (p *Provider) Run(ctx context.Context) {
	runCtx, stop := context.WithCancel(ctx)
	p.stop = stop
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := p.refreshIfDue(runCtx); err != nil {
					logger.Log.Warnw("firebase token refresh failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the refresher started by Run.
func (p *Provider) Close() error {
	if p.stop != nil {
		p.stop()
		<-p.done
	}
	return nil
}

var permanentRefreshFailures = []string{
	"TOKEN_EXPIRED",
	"USER_DISABLED",
	"USER_NOT_FOUND",
	"INVALID_REFRESH_TOKEN",
}

func (p *Provider) refreshIfDue(ctx context.Context) error {
	p.mu.Lock()
	tokens := p.tokens
	p.mu.Unlock()

	if tokens == nil || tokens.expiresAt.Sub(p.now()) > p.cfg.RefreshMargin {
		return nil
	}

	var result refreshResponse
	var failure errorResponse

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": tokens.refreshToken,
		}).
		SetResult(&result).
		SetError(&failure).
		Post(p.cfg.TokenURL + "/token")
	if err != nil {
		return identity.NewError(identity.CodeNetworkRequestFail, err)
	}

	if response.IsError() {
		message := failure.Error.Message
		for _, permanent := range permanentRefreshFailures {
			if strings.HasPrefix(message, permanent) {
				p.revoke(tokens)
				break
			}
		}
		return identity.NewError(codeFromMessage(message), errors.New(message))
	}

	refreshed, err := p.tokensFrom(result.IDToken, result.RefreshToken, result.ExpiresIn, result.UserID, tokens.identity.Email)
	if err != nil {
		return identity.NewError(identity.CodeInternalError, err)
	}

	p.mu.Lock()
	if p.tokens != tokens {
		// signed out or re-authenticated while refreshing
		p.mu.Unlock()
		return nil
	}
	p.tokens = refreshed
	p.mu.Unlock()

	if refreshed.identity != tokens.identity {
		changed := refreshed.identity
		p.emitter.Set(&changed)
	}

	return nil
}

func (p *Provider) revoke(tokens *tokenSet) {
	p.mu.Lock()
	if p.tokens != tokens {
		p.mu.Unlock()
		return
	}
	p.tokens = nil
	p.mu.Unlock()

	logger.Log.Infow("firebase session revoked", "uid", tokens.identity.UID)
	p.emitter.Set(nil)
}

// codeFromMessage maps the REST error message (e.g. "EMAIL_NOT_FOUND" or
// "WEAK_PASSWORD : Password should be at least 6 characters") to a code.
func codeFromMessage(message string) string {
	head, _, _ := strings.Cut(message, " ")

	switch head {
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return identity.CodeUserNotFound
	case "INVALID_PASSWORD", "MISSING_PASSWORD":
		return identity.CodeWrongPassword
	case "INVALID_LOGIN_CREDENTIALS":
		return identity.CodeInvalidCredential
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return identity.CodeInvalidEmail
	case "EMAIL_EXISTS":
		return identity.CodeEmailAlreadyInUse
	case "WEAK_PASSWORD":
		return identity.CodeWeakPassword
	case "USER_DISABLED":
		return identity.CodeUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return identity.CodeTooManyRequests
	}

	return identity.CodeInternalError
}
