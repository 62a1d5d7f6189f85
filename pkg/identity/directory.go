package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/typed"
)

// Directory plays the identity provider for local deployments: it owns the
// users table and resolves an email to a stable user id.
type Directory struct {
	users *typed.Repository[core.User]
	newID func() string
}

// NewDirectory creates a Directory over store.
func NewDirectory(store core.Store) *Directory {
	return &Directory{
		users: typed.NewRepository[core.User](store, core.TableUsers),
		newID: uuid.NewString,
	}
}

// Lookup finds a user by email.
func (d *Directory) Lookup(ctx context.Context, email string) (core.User, bool, error) {
	u, ok, err := d.users.First(ctx, []core.Filter{core.Eq("email", normalizeEmail(email))})
	if err != nil {
		return core.User{}, false, core.Persistence("lookup user", err)
	}
	return u, ok, nil
}

// Resolve returns the user registered under email, registering it first when
// unknown.
func (d *Directory) Resolve(ctx context.Context, email, name string) (core.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return core.User{}, core.Required("email")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return core.User{}, core.Invalid("email", err.Error())
	}

	if u, ok, err := d.Lookup(ctx, email); err != nil || ok {
		return u, err
	}

	u := core.User{ID: d.newID(), Email: email, Name: strings.TrimSpace(name)}
	ctx = core.WithChangeReason(ctx, "register user "+email)
	if _, err := d.users.Insert(ctx, u); err != nil {
		return core.User{}, core.Persistence("register user", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
