package services

import (
	"context"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

// Actor roles. They match the role claim of API tokens.
const (
	ActorOwner  = "owner"
	ActorDriver = "driver"
	ActorOps    = "ops"
)

// Actor is the authenticated caller behind a request.
type Actor struct {
	ID   string
	Role string
}

type actorKey struct{}

// WithActor attaches the caller to ctx. Requests without an actor come from
// trusted code (event handlers, jobs, unauthenticated local runs) and are not
// checked.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the caller attached to ctx.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// authorizeTripOwner lets ops and the trip's owner through.
func authorizeTripOwner(ctx context.Context, trip *models.Trip, action string) error {
	a, ok := ActorFrom(ctx)
	if !ok || a.Role == ActorOps {
		return nil
	}
	if a.Role == ActorOwner && a.ID == trip.OwnerID {
		return nil
	}
	return apperr.Forbidden("only the owner of trip %s can %s", trip.ID, action)
}
