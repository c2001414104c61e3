package repository

import (
	"context"

	"github.com/fastygo/taskpilot/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Upsert(ctx context.Context, user *domain.User) error
	// ListAgentEnabled returns ids of users that opted into autonomous agents, in a stable order.
	ListAgentEnabled(ctx context.Context) ([]string, error)
}
