// Package grpc carries authenticated session state across gRPC boundaries
// via metadata, and provides server interceptors that verify the signed
// session token with a kenmon SessionManager.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for authentication context.
// These can be customized via Config if needed.
const (
	// DefaultMetadataKeySessionToken is the default gRPC metadata key carrying
	// the signed session token (the same value the session cookie holds)
	DefaultMetadataKeySessionToken = "x-session-token"

	// DefaultMetadataKeyUserID is the default gRPC metadata key for the
	// verified user ID, set by the interceptors after verification
	DefaultMetadataKeyUserID = "x-user-id"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeySessionToken is the gRPC metadata key for the signed session
	// token. Defaults to "x-session-token".
	MetadataKeySessionToken string

	// MetadataKeyUserID is the gRPC metadata key for the verified user ID.
	// Defaults to "x-user-id".
	MetadataKeyUserID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeySessionToken: DefaultMetadataKeySessionToken,
		MetadataKeyUserID:       DefaultMetadataKeyUserID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
}

type contextKey string

const userIDContextKey contextKey = "kenmon.userId"

// ContextWithUserID stores a verified user ID on the context. Used by the
// interceptors after token verification.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext extracts the verified user ID from the context.
// Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey).(string); ok {
		return userID
	}
	return ""
}

// IsAuthenticated returns true if there is a verified user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// SessionTokenFromContext extracts the raw signed session token from incoming
// gRPC metadata. Returns empty string when absent.
func SessionTokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionToken); len(values) > 0 {
		return values[0]
	}
	return ""
}

// SessionTokenToOutgoingContext attaches the signed session token to outgoing
// gRPC metadata, so an HTTP gateway can forward the caller's session to a
// backend service.
func SessionTokenToOutgoingContext(ctx context.Context, signed string) context.Context {
	return SessionTokenToOutgoingContextWithKey(ctx, signed, DefaultMetadataKeySessionToken)
}

// SessionTokenToOutgoingContextWithKey attaches the token under a custom key.
func SessionTokenToOutgoingContextWithKey(ctx context.Context, signed string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, signed)
}
