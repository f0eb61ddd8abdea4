package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
)

// Roles carried in access tokens.
const (
	RoleAdmin  = "admin"
	RoleWorker = "worker"
	RoleUser   = "user"
)

// Actor is the caller identity resolved once at the request boundary.
type Actor struct {
	UserID   string
	Role     string
	WorkerID string
}

// IsAdmin reports whether the actor may perform administrative operations.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsWorker reports whether the actor has a worker profile.
func (a Actor) IsWorker() bool {
	return a.WorkerID != ""
}

// WorkerDirectory resolves worker profiles for users.
type WorkerDirectory interface {
	WorkerIDForUser(ctx context.Context, userID string) (string, error)
}

// GormWorkerDirectory reads worker profiles from the database.
type GormWorkerDirectory struct {
	db *gorm.DB
}

// NewWorkerDirectory constructs a WorkerDirectory backed by gorm.
func NewWorkerDirectory(db *gorm.DB) (*GormWorkerDirectory, error) {
	if db == nil {
		return nil, errors.New("worker directory: db is required")
	}
	return &GormWorkerDirectory{db: db}, nil
}

// WorkerIDForUser returns the worker profile id for a user, or "" when the user is not a worker.
func (d *GormWorkerDirectory) WorkerIDForUser(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil
	}

	var ids []string
	if err := d.db.WithContext(ensureContext(ctx)).
		Model(&models.WorkerProfile{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return "", fmt.Errorf("worker directory: lookup: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// ResolveActor builds an Actor from token claims. Workers are identified by profile,
// not by the role claim alone.
func ResolveActor(ctx context.Context, directory WorkerDirectory, userID, role string) (Actor, error) {
	actor := Actor{
		UserID: strings.TrimSpace(userID),
		Role:   strings.ToLower(defaultIfEmpty(strings.TrimSpace(role), RoleUser)),
	}
	if directory == nil || actor.UserID == "" {
		return actor, nil
	}

	workerID, err := directory.WorkerIDForUser(ctx, actor.UserID)
	if err != nil {
		return actor, err
	}
	actor.WorkerID = workerID
	if workerID != "" && actor.Role == RoleUser {
		actor.Role = RoleWorker
	}
	return actor, nil
}
