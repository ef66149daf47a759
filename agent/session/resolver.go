// Package session turns an identity into a role and the capability menu
// that role may see.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

type Config struct {
	UsersFile string `envconfig:"USERS_FILE" split_words:"true"`
}

type Catalog interface {
	ListFor(role contractx.Role) []contractx.Capability
}

type Resolver struct {
	directory Directory
	catalog   Catalog
}

func NewResolver(directory Directory, catalog Catalog) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("identity directory is required")
	}
	if catalog == nil {
		return nil, errors.New("capability catalog is required")
	}
	return &Resolver{directory: directory, catalog: catalog}, nil
}

// Open builds the session for identity. sessionID is kept when given,
// otherwise a fresh one is minted.
func (r *Resolver) Open(ctx context.Context, sessionID string, identity string) (contractx.Session, error) {
	user, err := r.directory.Lookup(ctx, identity)
	if err != nil {
		return contractx.Session{}, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return contractx.Session{
		ID:       sessionID,
		Identity: user.Identity,
		Name:     user.Name,
		Role:     user.Role,
		Menu:     r.catalog.ListFor(user.Role),
	}, nil
}
