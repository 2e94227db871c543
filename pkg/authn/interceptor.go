package authn

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

// UnaryServerInterceptor validates the incoming request's "authorization"
// metadata against validator, attaching the resulting claims to the
// context when present. A request carrying no header at all is passed
// through unauthenticated; callers that require auth check claims
// themselves, matching the namespace ACL model's unauthenticated
// default for anonymous pulls.
func UnaryServerInterceptor(validator *OidcValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := attachClaims(ctx, validator)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming-call counterpart of
// UnaryServerInterceptor.
func StreamServerInterceptor(validator *OidcValidator) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := attachClaims(ss.Context(), validator)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func attachClaims(ctx context.Context, validator *OidcValidator) (context.Context, error) {
	if validator == nil {
		return ctx, nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, nil
	}
	headers := md.Get("authorization")
	if len(headers) == 0 {
		return ctx, nil
	}
	claims, err := validator.Validate(ctx, headers[0])
	if err != nil {
		if ve, ok := err.(*vorpalerrors.Error); ok {
			return ctx, ve.ToStatus().Err()
		}
		return ctx, err
	}
	return ContextWithClaims(ctx, claims), nil
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
