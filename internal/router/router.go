// Package router exposes the session manager over HTTP: JSON endpoints for
// the auth operations and a Server-Sent Events feed of session changes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/sanasto/internal/gzippedhttp"
	"github.com/patric-chuzhbe/sanasto/internal/identity"
	"github.com/patric-chuzhbe/sanasto/internal/ipchecker"
	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
	"github.com/patric-chuzhbe/sanasto/internal/session"
)

type sessionManager interface {
	LoginWithEmail(ctx context.Context, email, password string) (*models.AppUser, error)
	SignupWithEmail(ctx context.Context, email, password string) (*models.AppUser, error)
	EnterGuestMode(ctx context.Context) (*models.AppUser, error)
	Logout(ctx context.Context) error
	CurrentUser() *models.AppUser
	StoredUser(ctx context.Context) (*models.AppUser, error)
	Subscribe(listener session.Listener) (unsubscribe func())
	State() models.State
	ListenerCount() int
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Router holds the HTTP handlers and their dependencies.
type Router struct {
	sessions        sessionManager
	db              pinger
	validate        *validator.Validate
	channelCapacity int
}

func New(
	sessions sessionManager,
	db pinger,
	ipChecker *ipchecker.IPChecker,
	channelCapacity int,
) *chi.Mux {
	if channelCapacity <= 0 {
		channelCapacity = 1
	}
	if ipChecker == nil {
		ipChecker, _ = ipchecker.New("")
	}

	router := Router{
		sessions:        sessions,
		db:              db,
		validate:        validator.New(),
		channelCapacity: channelCapacity,
	}

	mux := chi.NewRouter()
	mux.Use(logger.WithLoggingHTTPMiddleware)
	mux.Use(gzippedhttp.UngzipJSONAndTextHTMLRequest)
	mux.Use(gzippedhttp.GzipResponse)

	mux.Get(`/ping`, router.GetPing)
	mux.Route(`/api/session`, func(r chi.Router) {
		r.Get(`/`, router.GetApisession)
		r.Get(`/stored`, router.GetApisessionstored)
		r.Get(`/events`, router.GetApisessionevents)
		r.Post(`/login`, router.PostApisessionlogin)
		r.Post(`/signup`, router.PostApisessionsignup)
		r.Post(`/guest`, router.PostApisessionguest)
		r.Post(`/logout`, router.PostApisessionlogout)
	})
	mux.With(ipChecker.Guard).Get(`/api/internal/status`, router.GetApiinternalstatus)

	return mux
}

func writeJSON(res http.ResponseWriter, statusCode int, payload any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	if err := json.NewEncoder(res).Encode(payload); err != nil {
		logger.Log.Debugln("error while encoding the response", "error", err)
	}
}

func authErrorStatus(authErr *session.AuthError) int {
	if authErr.Op == "logout" {
		return http.StatusBadGateway
	}

	switch authErr.Code {
	case identity.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case identity.CodeInvalidEmail, identity.CodeWeakPassword:
		return http.StatusBadRequest
	case identity.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case identity.CodeNetworkRequestFail:
		return http.StatusBadGateway
	}
	return http.StatusUnauthorized
}

func writeSessionError(res http.ResponseWriter, err error) {
	var authErr *session.AuthError

	switch {
	case errors.As(err, &authErr):
		writeJSON(res, authErrorStatus(authErr), models.ErrorResponse{Error: authErr.Message, Code: authErr.Code})
	case errors.Is(err, session.ErrUnavailable), errors.Is(err, session.ErrClosed):
		writeJSON(res, http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(res, http.StatusGatewayTimeout, models.ErrorResponse{Error: err.Error()})
	default:
		logger.Log.Errorw("session operation failed", "error", err)
		writeJSON(res, http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}
}

func (router *Router) sessionResponse(user *models.AppUser) models.SessionResponse {
	return models.SessionResponse{User: user, State: router.sessions.State()}
}

func (router *Router) decodeCredentials(req *http.Request) (*models.CredentialsRequest, error) {
	var credentials models.CredentialsRequest
	if err := json.NewDecoder(req.Body).Decode(&credentials); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}
	if err := router.validate.Struct(credentials); err != nil {
		return nil, err
	}
	return &credentials, nil
}

type credentialsOperation func(ctx context.Context, email, password string) (*models.AppUser, error)

func (router *Router) handleCredentials(res http.ResponseWriter, req *http.Request, operation credentialsOperation) {
	credentials, err := router.decodeCredentials(req)
	if err != nil {
		writeJSON(res, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := operation(req.Context(), credentials.Email, credentials.Password)
	if err != nil {
		writeSessionError(res, err)
		return
	}

	writeJSON(res, http.StatusOK, router.sessionResponse(user))
}

func (router *Router) PostApisessionlogin(res http.ResponseWriter, req *http.Request) {
	router.handleCredentials(res, req, router.sessions.LoginWithEmail)
}

func (router *Router) PostApisessionsignup(res http.ResponseWriter, req *http.Request) {
	router.handleCredentials(res, req, router.sessions.SignupWithEmail)
}

func (router *Router) PostApisessionguest(res http.ResponseWriter, req *http.Request) {
	user, err := router.sessions.EnterGuestMode(req.Context())
	if err != nil {
		writeSessionError(res, err)
		return
	}

	writeJSON(res, http.StatusOK, router.sessionResponse(user))
}

func (router *Router) PostApisessionlogout(res http.ResponseWriter, req *http.Request) {
	if err := router.sessions.Logout(req.Context()); err != nil {
		writeSessionError(res, err)
		return
	}

	writeJSON(res, http.StatusOK, router.sessionResponse(nil))
}

func (router *Router) GetApisession(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusOK, router.sessionResponse(router.sessions.CurrentUser()))
}

func (router *Router) GetApisessionstored(res http.ResponseWriter, req *http.Request) {
	user, err := router.sessions.StoredUser(req.Context())
	if err != nil {
		writeSessionError(res, err)
		return
	}

	writeJSON(res, http.StatusOK, router.sessionResponse(user))
}

// GetApisessionevents streams session changes as Server-Sent Events. A client
// that falls more than channelCapacity events behind is disconnected.
func (router *Router) GetApisessionevents(res http.ResponseWriter, req *http.Request) {
	flusher, ok := res.(http.Flusher)
	if !ok {
		http.Error(res, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	updates := make(chan *models.AppUser, router.channelCapacity)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe := router.sessions.Subscribe(func(user *models.AppUser) {
		select {
		case updates <- user:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	res.Header().Set("Content-Type", "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-overflow:
			logger.Log.Warnw("session event stream fell behind, closing it", "capacity", router.channelCapacity)
			return
		case user := <-updates:
			data, err := json.Marshal(router.sessionResponse(user))
			if err != nil {
				logger.Log.Errorw("error while encoding a session event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(res, "event: session\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (router *Router) GetPing(res http.ResponseWriter, req *http.Request) {
	if err := router.db.Ping(req.Context()); err != nil {
		logger.Log.Errorw("storage ping failed", "error", err)
		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	res.WriteHeader(http.StatusOK)
}

// GetApiinternalstatus is mounted behind the trusted subnet guard.
func (router *Router) GetApiinternalstatus(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusOK, models.InternalStatusResponse{
		State:     router.sessions.State(),
		Listeners: router.sessions.ListenerCount(),
	})
}
