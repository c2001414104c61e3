package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository/memory"
)

func TestUpdateProfile_EnrollsInAgents(t *testing.T) {
	ctx := context.Background()
	users := memory.NewStore().Users()
	uc := New(users, nil)

	enabled := true
	user, err := uc.UpdateProfile(ctx, "u1", Patch{AgentsEnabled: &enabled})
	require.NoError(t, err)
	assert.True(t, user.AgentsEnabled)
	assert.Equal(t, "active", user.Status)

	ids, err := users.ListAgentEnabled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	email := "me@example.com"
	user, err = uc.UpdateProfile(ctx, "u1", Patch{Email: &email})
	require.NoError(t, err)
	assert.True(t, user.AgentsEnabled, "untouched fields survive a patch")
	assert.Equal(t, email, user.Email)
}

func TestProfile_Errors(t *testing.T) {
	uc := New(memory.NewStore().Users(), nil)

	_, err := uc.GetProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = uc.UpdateProfile(context.Background(), "", Patch{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
