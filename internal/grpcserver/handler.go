package grpcserver

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
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

type SessionHandler struct {
	sessions        sessionManager
	validate        *validator.Validate
	channelCapacity int
}

func NewSessionHandler(sessions sessionManager, channelCapacity int) *SessionHandler {
	if channelCapacity <= 0 {
		channelCapacity = 1
	}
	return &SessionHandler{
		sessions:        sessions,
		validate:        validator.New(),
		channelCapacity: channelCapacity,
	}
}

func authErrorCode(authErr *session.AuthError) codes.Code {
	if authErr.Op == "logout" {
		return codes.Unavailable
	}

	switch authErr.Code {
	case identity.CodeEmailAlreadyInUse:
		return codes.AlreadyExists
	case identity.CodeInvalidEmail, identity.CodeWeakPassword:
		return codes.InvalidArgument
	case identity.CodeTooManyRequests:
		return codes.ResourceExhausted
	case identity.CodeNetworkRequestFail:
		return codes.Unavailable
	}
	return codes.Unauthenticated
}

func (h *SessionHandler) statusError(ctx context.Context, err error) error {
	var authErr *session.AuthError

	switch {
	case errors.As(err, &authErr):
		if authErr.Code != "" {
			if trailerErr := grpc.SetTrailer(ctx, metadata.Pairs(AuthCodeTrailer, authErr.Code)); trailerErr != nil {
				logger.Log.Debugw("error while setting the auth code trailer", "error", trailerErr)
			}
		}
		return status.Error(authErrorCode(authErr), authErr.Message)
	case errors.Is(err, session.ErrUnavailable), errors.Is(err, session.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}

	logger.Log.Errorw("session operation failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func (h *SessionHandler) reply(user *models.AppUser) *structpb.Struct {
	return sessionToStruct(user, h.sessions.State())
}

func (h *SessionHandler) credentials(req *structpb.Struct) (*models.CredentialsRequest, error) {
	fields := req.GetFields()
	credentials := models.CredentialsRequest{
		Email:    fields["email"].GetStringValue(),
		Password: fields["password"].GetStringValue(),
	}
	if err := h.validate.Struct(credentials); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &credentials, nil
}

type credentialsOperation func(ctx context.Context, email, password string) (*models.AppUser, error)

func (h *SessionHandler) withCredentials(
	ctx context.Context,
	req *structpb.Struct,
	operation credentialsOperation,
) (*structpb.Struct, error) {
	credentials, err := h.credentials(req)
	if err != nil {
		return nil, err
	}

	user, err := operation(ctx, credentials.Email, credentials.Password)
	if err != nil {
		return nil, h.statusError(ctx, err)
	}

	return h.reply(user), nil
}

func (h *SessionHandler) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withCredentials(ctx, req, h.sessions.LoginWithEmail)
}

func (h *SessionHandler) Signup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withCredentials(ctx, req, h.sessions.SignupWithEmail)
}

func (h *SessionHandler) EnterGuest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, err := h.sessions.EnterGuestMode(ctx)
	if err != nil {
		return nil, h.statusError(ctx, err)
	}
	return h.reply(user), nil
}

func (h *SessionHandler) Logout(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := h.sessions.Logout(ctx); err != nil {
		return nil, h.statusError(ctx, err)
	}
	return h.reply(nil), nil
}

func (h *SessionHandler) Current(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return h.reply(h.sessions.CurrentUser()), nil
}

func (h *SessionHandler) Stored(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, err := h.sessions.StoredUser(ctx)
	if err != nil {
		return nil, h.statusError(ctx, err)
	}
	return h.reply(user), nil
}

// Status is guarded by the trusted subnet interceptor.
func (h *SessionHandler) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"state":     structpb.NewStringValue(h.sessions.State().String()),
		"listeners": structpb.NewNumberValue(float64(h.sessions.ListenerCount())),
	}}, nil
}

// Watch forwards every delivered session change to the stream. A client that
// falls more than channelCapacity changes behind gets ResourceExhausted.
func (h *SessionHandler) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	updates := make(chan *models.AppUser, h.channelCapacity)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe := h.sessions.Subscribe(func(user *models.AppUser) {
		select {
		case updates <- user:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-overflow:
			return status.Error(codes.ResourceExhausted, "the watcher fell behind the session changes")
		case user := <-updates:
			if err := stream.SendMsg(h.reply(user)); err != nil {
				return err
			}
		}
	}
}
