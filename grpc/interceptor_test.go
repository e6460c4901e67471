package grpc_test

import (
	"context"
	"testing"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	km "github.com/Rokt33r/kenmon"
	kmgrpc "github.com/Rokt33r/kenmon/grpc"
	"github.com/Rokt33r/kenmon/stores"
)

// fakeVerify accepts the literal token "good-token" as user-1
func fakeVerify(signed string) (*km.Session, error) {
	if signed == "good-token" {
		return &km.Session{ID: "sess-1", UserID: "user-1"}, nil
	}
	return nil, km.NewAuthError(km.ErrCodeInvalidSession, "invalid session")
}

func incomingCtx(token string) context.Context {
	ctx := context.Background()
	if token == "" {
		return ctx
	}
	return metadata.NewIncomingContext(ctx, metadata.Pairs(kmgrpc.DefaultMetadataKeySessionToken, token))
}

func TestUnaryAuthInterceptor(t *testing.T) {
	interceptor := kmgrpc.UnaryAuthInterceptor(
		kmgrpc.NewInterceptorConfig(fakeVerify).WithPublicMethods("/auth.Auth/SignIn"),
	)

	tests := []struct {
		name       string
		method     string
		token      string
		wantCode   codes.Code
		wantUserID string
	}{
		{"valid token", "/auth.Auth/Me", "good-token", codes.OK, "user-1"},
		{"missing token", "/auth.Auth/Me", "", codes.Unauthenticated, ""},
		{"invalid token", "/auth.Auth/Me", "tampered", codes.Unauthenticated, ""},
		{"public method without token", "/auth.Auth/SignIn", "", codes.OK, ""},
		{"public method with valid token", "/auth.Auth/SignIn", "good-token", codes.OK, "user-1"},
		{"public method with invalid token", "/auth.Auth/SignIn", "tampered", codes.Unauthenticated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			handler := func(ctx context.Context, req any) (any, error) {
				gotUserID = kmgrpc.UserIDFromContext(ctx)
				return "ok", nil
			}

			_, err := interceptor(incomingCtx(tt.token), nil, &grpclib.UnaryServerInfo{FullMethod: tt.method}, handler)
			if status.Code(err) != tt.wantCode {
				t.Fatalf("Expected code %v, got %v (err=%v)", tt.wantCode, status.Code(err), err)
			}
			if tt.wantCode == codes.OK && gotUserID != tt.wantUserID {
				t.Errorf("Expected user %q in context, got %q", tt.wantUserID, gotUserID)
			}
		})
	}
}

// fakeServerStream carries a context into the stream interceptor
type fakeServerStream struct {
	grpclib.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	interceptor := kmgrpc.StreamAuthInterceptor(kmgrpc.NewInterceptorConfig(fakeVerify))

	t.Run("valid token", func(t *testing.T) {
		var gotUserID string
		handler := func(srv any, ss grpclib.ServerStream) error {
			gotUserID = kmgrpc.UserIDFromContext(ss.Context())
			return nil
		}
		err := interceptor(nil, &fakeServerStream{ctx: incomingCtx("good-token")},
			&grpclib.StreamServerInfo{FullMethod: "/auth.Auth/Watch"}, handler)
		if err != nil {
			t.Fatalf("Interceptor failed: %v", err)
		}
		if gotUserID != "user-1" {
			t.Errorf("Expected user-1 on the stream context, got %q", gotUserID)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		handler := func(srv any, ss grpclib.ServerStream) error { return nil }
		err := interceptor(nil, &fakeServerStream{ctx: incomingCtx("")},
			&grpclib.StreamServerInfo{FullMethod: "/auth.Auth/Watch"}, handler)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("Expected Unauthenticated, got %v", err)
		}
	})
}

// TestInterceptorWithSessionManager wires the interceptor to a real
// SessionManager, the way a service would.
func TestInterceptorWithSessionManager(t *testing.T) {
	mgr := &km.SessionManager{
		Store:  stores.NewFSSessionStore(t.TempDir()),
		Secret: "test-secret-for-grpc",
	}

	cookies := &captureCookies{}
	if _, err := mgr.CreateSession(cookies, "user-7", nil); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	interceptor := kmgrpc.UnaryAuthInterceptor(kmgrpc.NewInterceptorConfig(mgr.VerifyToken))

	var gotUserID string
	handler := func(ctx context.Context, req any) (any, error) {
		gotUserID = kmgrpc.UserIDFromContext(ctx)
		return "ok", nil
	}
	_, err := interceptor(incomingCtx(cookies.value), nil,
		&grpclib.UnaryServerInfo{FullMethod: "/auth.Auth/Me"}, handler)
	if err != nil {
		t.Fatalf("Interceptor rejected a real session token: %v", err)
	}
	if gotUserID != "user-7" {
		t.Errorf("Expected user-7, got %q", gotUserID)
	}
}

// captureCookies records the signed session value instead of writing a cookie
type captureCookies struct {
	value string
}

func (c *captureCookies) SetCookie(name, value string, opts km.CookieOptions) { c.value = value }
func (c *captureCookies) GetCookie(name string) string                        { return c.value }
func (c *captureCookies) DeleteCookie(name string)                            { c.value = "" }
