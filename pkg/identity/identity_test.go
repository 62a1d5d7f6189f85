package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/identity"
)

func TestSession(t *testing.T) {
	s := identity.NewSession()
	_, ok := s.CurrentUser()
	assert.False(t, ok)
	_, err := s.MustUser()
	assert.ErrorIs(t, err, identity.ErrSignedOut)

	var got []identity.AuthEvent
	sub := s.Subscribe(func(e identity.AuthEvent) { got = append(got, e) })

	ada := core.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}
	s.SignIn(ada)
	u, ok := s.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, ada, u)

	s.SignOut()
	s.SignOut()
	_, ok = s.CurrentUser()
	assert.False(t, ok)

	sub.Cancel()
	sub.Cancel()
	s.SignIn(ada)

	require.Len(t, got, 2)
	assert.Equal(t, identity.AuthEvent{Type: identity.SignedIn, User: ada}, got[0])
	assert.Equal(t, identity.SignedOut, got[1].Type)
}

func TestDirectory_Resolve(t *testing.T) {
	store := testutil.NewStore()
	defer store.Close()
	dir := identity.NewDirectory(store)
	ctx := context.Background()

	first, err := dir.Resolve(ctx, " Ada@Example.com ", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, "Ada", first.DisplayName())

	again, err := dir.Resolve(ctx, "ada@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, store.Rows(core.TableUsers), 1)

	_, err = dir.Resolve(ctx, "", "x")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = dir.Resolve(ctx, "not-an-email", "x")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, ok, err := dir.Lookup(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
