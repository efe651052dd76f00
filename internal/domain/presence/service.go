package presence

import (
	"context"
)

// CredentialValidator verifies the credential presented during the socket handshake
type CredentialValidator interface {
	Verify(ctx context.Context, token string) (VerifiedIdentity, error)
}

// DeliveryOutcome reports what happened when pushing to one user
type DeliveryOutcome struct {
	// Attempted is true when the user had at least one live connection
	Attempted bool
	// Delivered is true when at least one emission succeeded
	Delivered   bool
	Connections int
	Failures    int
}

// Router pushes server events to connected users
type Router interface {
	PushToUser(ctx context.Context, userID string, event string, data interface{}) DeliveryOutcome
	PushToUsers(ctx context.Context, userIDs []string, event string, data interface{}) map[string]DeliveryOutcome
	PushToRoom(ctx context.Context, room string, exceptConnID string, event string, data interface{}) int
	PushToConnection(ctx context.Context, connID string, event string, data interface{}) error
}

// Directory answers presence queries
type Directory interface {
	IsOnline(userID string) bool
}
