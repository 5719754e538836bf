package middleware

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated caller as carried through a request.
type Actor struct {
	UserID string
	Role   string
	Email  string
}

type actorKey struct{}

func ActorFromContext(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

// WithActor replaces the caller stored on ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

func UserIDFromContext(ctx context.Context) string { return ActorFromContext(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return ActorFromContext(ctx).Role }

func EmailFromContext(ctx context.Context) string { return ActorFromContext(ctx).Email }

// UserUUIDFromContext parses the caller id. Missing or malformed ids give uuid.Nil.
func UserUUIDFromContext(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func WithUserID(ctx context.Context, userID string) context.Context {
	actor := ActorFromContext(ctx)
	actor.UserID = userID
	return WithActor(ctx, actor)
}

func WithRole(ctx context.Context, role string) context.Context {
	actor := ActorFromContext(ctx)
	actor.Role = role
	return WithActor(ctx, actor)
}

func WithEmail(ctx context.Context, email string) context.Context {
	actor := ActorFromContext(ctx)
	actor.Email = email
	return WithActor(ctx, actor)
}
