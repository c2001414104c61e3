package profile

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
)

// Patch lists the profile fields a user may change. Nil fields are left untouched.
type Patch struct {
	Email         *string
	AgentsEnabled *bool
	Metadata      map[string]string
}

type UseCase struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func New(users repository.UserRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:  users,
		logger: logger,
	}
}

func (uc *UseCase) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return uc.users.GetByID(ctx, userID)
}

// UpdateProfile applies patch to the caller's profile, creating it on first use. Toggling
// AgentsEnabled is what enrolls an identity in the overdue agent.
func (uc *UseCase) UpdateProfile(ctx context.Context, userID string, patch Patch) (*domain.User, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	user, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		if !domain.IsNotFound(err) {
			return nil, err
		}
		user = &domain.User{ID: userID, Status: "active"}
	}

	before := user.AgentsEnabled
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.AgentsEnabled != nil {
		user.AgentsEnabled = *patch.AgentsEnabled
	}
	if patch.Metadata != nil {
		user.Metadata = patch.Metadata
	}

	if err := uc.users.Upsert(ctx, user); err != nil {
		return nil, err
	}
	if before != user.AgentsEnabled {
		uc.logger.Info("autonomous agents toggled",
			zap.String("user_id", userID),
			zap.Bool("enabled", user.AgentsEnabled))
	}
	return user, nil
}
