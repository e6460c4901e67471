package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	km "github.com/Rokt33r/kenmon"
)

// TokenVerifier verifies a signed session token and returns the session.
// kenmon.SessionManager.VerifyToken satisfies this.
type TokenVerifier func(signed string) (*km.Session, error)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Verify checks the signed session token. Required.
	Verify TokenVerifier

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires a verified session for
// all methods.
func NewInterceptorConfig(verify TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verify:        verify,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// WithPublicMethods marks the given full method names as reachable without a
// session and returns the config for chaining.
func (c *InterceptorConfig) WithPublicMethods(methods ...string) *InterceptorConfig {
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	for _, method := range methods {
		c.PublicMethods[method] = true
	}
	return c
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// signed session token from metadata and stores the user ID on the context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the
// signed session token from metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticate verifies the token, if any, and enforces RequireAuth.
func authenticate(ctx context.Context, config *InterceptorConfig, fullMethod string) (context.Context, error) {
	public := config.PublicMethods[fullMethod]

	signed := SessionTokenFromContext(ctx, config.Config)
	if signed == "" {
		if config.RequireAuth && !public {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	sess, err := config.Verify(signed)
	if err != nil {
		// A bad token on a public method is still a bad token
		return nil, status.Error(codes.Unauthenticated, "invalid session")
	}
	return ContextWithUserID(ctx, sess.UserID), nil
}

// wrappedStream overrides the stream context so handlers see the verified
// user ID.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
