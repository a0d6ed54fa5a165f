package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
)

const (
	opLogin  = "login"
	opSignup = "signup"
	opLogout = "logout"
)

type credentialsCall func(ctx context.Context, email, password string) (*identity.Identity, error)

// LoginWithEmail signs in with the provider and makes the result the current
// session. On failure the session is left as it was.
func (m *Manager) LoginWithEmail(ctx context.Context, email, password string) (*models.AppUser, error) {
	return m.authenticate(ctx, opLogin, email, password, m.provider.SignIn, loginMessageKey)
}

// SignupWithEmail creates an account and makes it the current session.
func (m *Manager) SignupWithEmail(ctx context.Context, email, password string) (*models.AppUser, error) {
	return m.authenticate(ctx, opSignup, email, password, m.provider.SignUp, signupMessageKey)
}

func (m *Manager) authenticate(
	ctx context.Context,
	op string,
	email string,
	password string,
	call credentialsCall,
	messageKey func(code string) string,
) (*models.AppUser, error) {
	if err := m.WaitReady(ctx); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.isClosed() {
		return nil, ErrClosed
	}

	id, err := call(ctx, email, password)
	if err == nil && id == nil {
		err = identity.NewError(identity.CodeInternalError, errors.New("provider returned no identity"))
	}
	if err != nil {
		authErr := m.authError(op, err, messageKey)
		logger.Log.Infow("authentication rejected", "op", op, "code", authErr.Code)
		return nil, authErr
	}

	user := userFromIdentity(id, email)
	// the provider already accepted the credentials, so persist even if the caller gave up
	m.saveUser(context.WithoutCancel(ctx), user)
	m.commit(user, false)

	return user.Clone(), nil
}

func (m *Manager) authError(op string, err error, messageKey func(code string) string) *AuthError {
	code := identity.CodeOf(err)
	return &AuthError{
		Op:      op,
		Code:    code,
		Message: m.printer.Sprintf(messageKey(code)),
		Err:     err,
	}
}

// EnterGuestMode replaces the current session with a fresh guest. It does not
// wait for the provider and fails only on a closed manager.
func (m *Manager) EnterGuestMode(ctx context.Context) (*models.AppUser, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.isClosed() {
		return nil, ErrClosed
	}

	user := &models.AppUser{
		Email:   models.GuestEmail,
		IsGuest: true,
		UID:     m.newGuestUID(),
	}
	m.saveUser(context.WithoutCancel(ctx), user)
	m.commit(user, false)

	return user.Clone(), nil
}

func (m *Manager) newGuestUID() string {
	return fmt.Sprintf("%s%d-%d", models.GuestUIDPrefix, m.now().UnixMilli(), m.guestSequence.Add(1))
}

// Logout signs out of the provider unless the session is a guest, then clears
// the session and both slots. A failed provider sign-out leaves everything
// untouched.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.isClosed() {
		return ErrClosed
	}

	current := m.current.Load()
	if current == nil || !current.IsGuest {
		if err := m.provider.SignOut(ctx); err != nil {
			return m.authError(opLogout, err, logoutMessageKey)
		}
	}

	m.clearSlots(context.WithoutCancel(ctx))
	m.commit(nil, false)

	return nil
}
