package firebase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
)

type fakeFirebase struct {
	mu            sync.Mutex
	t             *testing.T
	now           time.Time
	passwords     map[string]string
	refreshError  string
	refreshCalls  int
	lastGrantType string
	lastKey       string
}

func (f *fakeFirebase) stats() (refreshCalls int, grantType, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.lastGrantType, f.lastKey
}

func (f *fakeFirebase) failRefreshWith(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshError = message
}

func signToken(t *testing.T, uid, email string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: uid,
		Email:  email,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func writeFirebaseError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	body := errorResponse{}
	body.Error.Code = http.StatusBadRequest
	body.Error.Message = message
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeFirebase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastKey = r.URL.Query().Get("key")

	switch r.URL.Path {
	case "/v1/accounts:signInWithPassword", "/v1/accounts:signUp":
		var request credentialsRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&request))

		if r.URL.Path == "/v1/accounts:signUp" {
			if _, exists := f.passwords[request.Email]; exists {
				writeFirebaseError(w, "EMAIL_EXISTS")
				return
			}
			if len(request.Password) < 6 {
				writeFirebaseError(w, "WEAK_PASSWORD : Password should be at least 6 characters")
				return
			}
			f.passwords[request.Email] = request.Password
		} else {
			password, exists := f.passwords[request.Email]
			if !exists {
				writeFirebaseError(w, "EMAIL_NOT_FOUND")
				return
			}
			if password != request.Password {
				writeFirebaseError(w, "INVALID_PASSWORD")
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(credentialsResponse{
			IDToken:      signToken(f.t, "uid-"+request.Email, request.Email, f.now.Add(time.Hour)),
			Email:        request.Email,
			RefreshToken: "refresh-" + request.Email,
			ExpiresIn:    "3600",
			LocalID:      "uid-" + request.Email,
		})

	case "/v1/token":
		require.NoError(f.t, r.ParseForm())
		f.refreshCalls++
		f.lastGrantType = r.PostForm.Get("grant_type")
		if f.refreshError != "" {
			writeFirebaseError(w, f.refreshError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(refreshResponse{
			IDToken:      signToken(f.t, "uid-a@x.com", "a@x.com", f.now.Add(2*time.Hour)),
			RefreshToken: "refresh-2",
			ExpiresIn:    "3600",
			UserID:       "uid-a@x.com",
		})

	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T) (*Provider, *fakeFirebase) {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeFirebase{t: t, now: now, passwords: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	p := New(Config{
		APIKey:   "test-key",
		AuthURL:  server.URL + "/v1",
		TokenURL: server.URL + "/v1",
	})
	p.now = func() time.Time { return now }

	return p, fake
}

func TestSignUpThenSignIn(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestProvider(t)

	var events []*identity.Identity
	unsubscribe, err := p.OnChange(func(id *identity.Identity) {
		events = append(events, id)
	})
	require.NoError(t, err)
	defer unsubscribe()

	created, err := p.SignUp(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, &identity.Identity{Email: "a@x.com", UID: "uid-a@x.com"}, created)
	_, _, key := fake.stats()
	assert.Equal(t, "test-key", key)
	assert.NotEmpty(t, p.IDToken())

	signedIn, err := p.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created, signedIn)

	require.NoError(t, p.SignOut(ctx))
	assert.Empty(t, p.IDToken())

	assert.Equal(t, []*identity.Identity{nil, created, created, nil}, events)
}

func TestRESTErrorsMapToCodes(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)

	_, err := p.SignUp(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		call     func() error
		wantCode string
	}{
		{
			name:     "unknown email",
			call:     func() error { _, err := p.SignIn(ctx, "b@x.com", "secret1"); return err },
			wantCode: identity.CodeUserNotFound,
		},
		{
			name:     "wrong password",
			call:     func() error { _, err := p.SignIn(ctx, "a@x.com", "nope"); return err },
			wantCode: identity.CodeWrongPassword,
		},
		{
			name:     "taken email",
			call:     func() error { _, err := p.SignUp(ctx, "a@x.com", "secret1"); return err },
			wantCode: identity.CodeEmailAlreadyInUse,
		},
		{
			name:     "weak password",
			call:     func() error { _, err := p.SignUp(ctx, "c@x.com", "123"); return err },
			wantCode: identity.CodeWeakPassword,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.wantCode, identity.CodeOf(testCase.call()))
		})
	}
}

func TestCodeFromMessage(t *testing.T) {
	testCases := map[string]string{
		"EMAIL_NOT_FOUND":           identity.CodeUserNotFound,
		"INVALID_PASSWORD":          identity.CodeWrongPassword,
		"INVALID_LOGIN_CREDENTIALS": identity.CodeInvalidCredential,
		"INVALID_EMAIL":             identity.CodeInvalidEmail,
		"EMAIL_EXISTS":              identity.CodeEmailAlreadyInUse,
		"USER_DISABLED":             identity.CodeUserDisabled,
		"TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled": identity.CodeTooManyRequests,
		"WEAK_PASSWORD : Password should be at least 6 characters":                           identity.CodeWeakPassword,
		"SOMETHING_NEW": identity.CodeInternalError,
	}

	for message, want := range testCases {
		assert.Equal(t, want, codeFromMessage(message), message)
	}
}

func TestNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	p := New(Config{AuthURL: server.URL, TokenURL: server.URL, HTTPTimeout: time.Second})

	_, err := p.SignIn(context.Background(), "a@x.com", "secret1")
	assert.Equal(t, identity.CodeNetworkRequestFail, identity.CodeOf(err))
}

func TestRefreshIfDue(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestProvider(t)

	_, err := p.SignUp(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	firstToken := p.IDToken()

	require.NoError(t, p.refreshIfDue(ctx))
	calls, _, _ := fake.stats()
	assert.Equal(t, 0, calls, "token is still fresh")

	later := fake.now.Add(58 * time.Minute)
	p.now = func() time.Time { return later }

	require.NoError(t, p.refreshIfDue(ctx))
	calls, grantType, _ := fake.stats()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "refresh_token", grantType)
	assert.NotEqual(t, firstToken, p.IDToken())
}

func TestPermanentRefreshFailureSignsOut(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestProvider(t)

	var events []*identity.Identity
	unsubscribe, err := p.OnChange(func(id *identity.Identity) {
		events = append(events, id)
	})
	require.NoError(t, err)
	defer unsubscribe()

	created, err := p.SignUp(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	fake.failRefreshWith("TOKEN_EXPIRED")
	later := fake.now.Add(59 * time.Minute)
	p.now = func() time.Time { return later }

	err = p.refreshIfDue(ctx)
	require.Error(t, err)
	assert.Empty(t, p.IDToken())
	assert.Equal(t, []*identity.Identity{nil, created, nil}, events)
}

func TestRunAndClose(t *testing.T) {
	p, _ := newTestProvider(t)
	p.cfg.RefreshInterval = time.Millisecond

	p.Run(context.Background())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Close())
}
