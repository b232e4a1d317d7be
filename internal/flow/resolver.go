// Package flow implements the inbound chat pipeline: resolving the sender to a
// user, routing each event to a command, running the habit commands and
// replying exactly once per event.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
)

// Resolver maps an external chat identity to a User, creating it on first contact.
type Resolver struct {
	users    store.UserRepo
	profiles messaging.ProfileFetcher
}

// NewResolver creates a Resolver.
func NewResolver(users store.UserRepo, profiles messaging.ProfileFetcher) *Resolver {
	return &Resolver{users: users, profiles: profiles}
}

// Resolve returns the user bound to externalID. A concurrent first contact that
// loses the insert race re-reads the winner's row instead of failing.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (*models.User, error) {
	u, err := r.users.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	var name string
	if r.profiles != nil {
		p, err := r.profiles.Profile(ctx, externalID)
		if err != nil {
			slog.Warn("Resolver.Resolve: profile lookup failed, creating user without name", "external_id", externalID, "error", err)
		} else {
			name = p.DisplayName
		}
	}

	u, err = r.users.CreateUser(ctx, models.User{
		ExternalID: externalID,
		Name:       name,
		Plan:       models.PlanFree,
		Persona:    models.DefaultPersona,
	})
	if errors.Is(err, store.ErrConflict) {
		slog.Debug("Resolver.Resolve: lost first-contact race, re-reading", "external_id", externalID)
		return r.users.GetUserByExternalID(ctx, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	slog.Info("Resolver.Resolve: created user", "user_id", u.ID, "external_id", externalID)
	return u, nil
}
