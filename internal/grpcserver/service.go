package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/patric-chuzhbe/sanasto/internal/models"
)

const serviceName = "sanasto.SessionService"

// Full method names, as seen by interceptors.
const (
	MethodLogin      = "/" + serviceName + "/Login"
	MethodSignup     = "/" + serviceName + "/Signup"
	MethodEnterGuest = "/" + serviceName + "/EnterGuest"
	MethodLogout     = "/" + serviceName + "/Logout"
	MethodCurrent    = "/" + serviceName + "/Current"
	MethodStored     = "/" + serviceName + "/Stored"
	MethodStatus     = "/" + serviceName + "/Status"
	MethodWatch      = "/" + serviceName + "/Watch"
)

// AuthCodeTrailer carries the identity provider error code of a rejected call.
const AuthCodeTrailer = "auth-code"

// SessionServiceServer is the server side of sanasto.SessionService.
// Sessions travel as structpb.Struct values shaped like models.SessionResponse.
type SessionServiceServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Signup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnterGuest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Logout(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Current(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stored(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

func unaryMethod[Req proto.Message](
	name string,
	newRequest func() Req,
	call func(SessionServiceServer, context.Context, Req) (*structpb.Struct, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(
			srv interface{},
			ctx context.Context,
			dec func(interface{}) error,
			interceptor grpc.UnaryServerInterceptor,
		) (interface{}, error) {
			in := newRequest()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SessionServiceServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(SessionServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

// ServiceDesc describes sanasto.SessionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Login", newStruct, SessionServiceServer.Login),
		unaryMethod("Signup", newStruct, SessionServiceServer.Signup),
		unaryMethod("EnterGuest", newEmpty, SessionServiceServer.EnterGuest),
		unaryMethod("Logout", newEmpty, SessionServiceServer.Logout),
		unaryMethod("Current", newEmpty, SessionServiceServer.Current),
		unaryMethod("Stored", newEmpty, SessionServiceServer.Stored),
		unaryMethod("Status", newEmpty, SessionServiceServer.Status),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Watch",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(SessionServiceServer).Watch(in, stream)
			},
			ServerStreams: true,
		},
	},
}

func RegisterSessionServiceServer(registrar grpc.ServiceRegistrar, srv SessionServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func userToValue(user *models.AppUser) *structpb.Value {
	if user == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"email":   structpb.NewStringValue(user.Email),
		"isGuest": structpb.NewBoolValue(user.IsGuest),
		"uid":     structpb.NewStringValue(user.UID),
	}})
}

func userFromValue(value *structpb.Value) *models.AppUser {
	fields := value.GetStructValue().GetFields()
	if fields == nil {
		return nil
	}
	return &models.AppUser{
		Email:   fields["email"].GetStringValue(),
		IsGuest: fields["isGuest"].GetBoolValue(),
		UID:     fields["uid"].GetStringValue(),
	}
}

func sessionToStruct(user *models.AppUser, state models.State) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user":  userToValue(user),
		"state": structpb.NewStringValue(state.String()),
	}}
}

// Session is a decoded SessionService reply.
type Session struct {
	User  *models.AppUser
	State models.State
}

func sessionFromStruct(s *structpb.Struct) *Session {
	fields := s.GetFields()
	state, _ := models.ParseState(fields["state"].GetStringValue())
	return &Session{
		User:  userFromValue(fields["user"]),
		State: state,
	}
}

// Client calls sanasto.SessionService over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in proto.Message, opts ...grpc.CallOption) (*Session, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return sessionFromStruct(out), nil
}

func credentials(email, password string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"email":    structpb.NewStringValue(email),
		"password": structpb.NewStringValue(password),
	}}
}

func (c *Client) Login(ctx context.Context, email, password string, opts ...grpc.CallOption) (*Session, error) {
	return c.invoke(ctx, MethodLogin, credentials(email, password), opts...)
}

func (c *Client) Signup(ctx context.Context, email, password string, opts ...grpc.CallOption) (*Session, error) {
	return c.invoke(ctx, MethodSignup, credentials(email, password), opts...)
}

func (c *Client) EnterGuest(ctx context.Context, opts ...grpc.CallOption) (*Session, error) {
	return c.invoke(ctx, MethodEnterGuest, new(emptypb.Empty), opts...)
}

func (c *Client) Logout(ctx context.Context, opts ...grpc.CallOption) (*Session, error) {
	return c.invoke(ctx, MethodLogout, new(emptypb.Empty), opts...)
}

func (c *Client) Current(ctx context.Context, opts ...grpc.CallOption) (*Session, error) {
	return c.invoke(ctx, MethodCurrent, new(emptypb.Empty), opts...)
}

func (c *Client) Stored(ctx context.Context, opts ...grpc.CallOption) (*Session, error) {
	return c.invoke(ctx, MethodStored, new(emptypb.Empty), opts...)
}

// Status returns the raw status payload: {"state": ..., "listeners": ...}.
func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStatus, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchStream yields one Session per delivered session change.
type WatchStream struct {
	stream grpc.ClientStream
}

func (w *WatchStream) Recv() (*Session, error) {
	out := new(structpb.Struct)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return sessionFromStruct(out), nil
}

func (c *Client) Watch(ctx context.Context, opts ...grpc.CallOption) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodWatch, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}
