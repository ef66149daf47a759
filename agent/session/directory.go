package session

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	"gopkg.in/yaml.v3"
)

//go:embed users.yaml
var defaultUsersYAML []byte

type User struct {
	Identity string         `yaml:"identity"`
	Name     string         `yaml:"name"`
	Role     contractx.Role `yaml:"role"`
}

// Directory maps an already-authenticated identity to a user record.
type Directory interface {
	Lookup(ctx context.Context, identity string) (User, error)
}

// StaticDirectory is an immutable identity table.
type StaticDirectory struct {
	users map[string]User
}

func NewStaticDirectory(users []User) (*StaticDirectory, error) {
	d := &StaticDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		id := normalize(u.Identity)
		if id == "" {
			return nil, fmt.Errorf("%w: user identity is empty", contractx.ErrValidation)
		}
		role, ok := contractx.ParseRole(string(u.Role))
		if !ok {
			return nil, fmt.Errorf("%w: user %s has unknown role %q", contractx.ErrValidation, id, u.Role)
		}
		if _, dup := d.users[id]; dup {
			return nil, fmt.Errorf("%w: user %s listed twice", contractx.ErrValidation, id)
		}
		u.Identity = id
		u.Role = role
		if strings.TrimSpace(u.Name) == "" {
			u.Name = id
		}
		d.users[id] = u
	}
	return d, nil
}

func DefaultDirectory() (*StaticDirectory, error) {
	return ParseDirectory(defaultUsersYAML)
}

func LoadDirectory(path string) (*StaticDirectory, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDirectory()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file %s: %w", path, err)
	}
	return ParseDirectory(data)
}

func ParseDirectory(data []byte) (*StaticDirectory, error) {
	var f struct {
		Users []User `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return NewStaticDirectory(f.Users)
}

func (d *StaticDirectory) Lookup(ctx context.Context, identity string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	u, ok := d.users[normalize(identity)]
	if !ok {
		return User{}, fmt.Errorf("%w: %q", contractx.ErrUnknownIdentity, identity)
	}
	return u, nil
}

func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
