// Package authz resolves what a user may do inside a list. Permissions are
// computed once per request and passed to the services that need them.
package authz

import (
	"context"
	"fmt"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/model"
)

// Permissions is the resolved capability set of one user in one list. The
// zero value denies everything.
type Permissions struct {
	UserID string
	ListID string
	Role   model.Role

	CanRead       bool
	CanCreateTask bool
	CanModifyTask bool
	CanDeleteJob  bool
}

// RoleOf returns the user's role in the list, or "" when either is missing
// or the user is not a member.
func RoleOf(list *model.List, userID string) model.Role {
	if list == nil || userID == "" {
		return ""
	}
	return list.MemberRole(userID)
}

func isManager(r model.Role) bool {
	return r == model.RoleOwner || r == model.RoleManager
}

// Resolve computes the permission set for userID in list.
func Resolve(list *model.List, userID string) Permissions {
	role := RoleOf(list, userID)
	if role == "" {
		return Permissions{UserID: userID}
	}
	manager := isManager(role)
	return Permissions{
		UserID:        userID,
		ListID:        list.ID,
		Role:          role,
		CanRead:       true,
		CanCreateTask: manager,
		CanModifyTask: manager,
		CanDeleteJob:  manager,
	}
}

// IsMember reports whether the user holds any role in the list.
func (p Permissions) IsMember() bool { return p.Role != "" }

// IsManager reports whether the user is an OWNER or MANAGER.
func (p Permissions) IsManager() bool { return isManager(p.Role) }

// CanCreateJob allows owners and managers to assign anyone, and
// collaborators to assign only themselves.
func (p Permissions) CanCreateJob(workerID string) bool {
	switch p.Role {
	case model.RoleOwner, model.RoleManager:
		return true
	case model.RoleCollaborator:
		return workerID != "" && workerID == p.UserID
	}
	return false
}

// CanValidateJob is false for the job's own worker whatever their role.
func (p Permissions) CanValidateJob(workerID string) bool {
	return p.UserID != "" && p.UserID != workerID && p.IsManager()
}

// CanWorkJob reports whether the user may move a job between working states.
func (p Permissions) CanWorkJob(workerID string) bool {
	return (p.UserID != "" && p.UserID == workerID) || p.IsManager()
}

// Loader is the slice of the storage contract the resolver needs.
type Loader interface {
	GetList(ctx context.Context, id string) (*model.List, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type Resolver struct {
	loader Loader
}

func NewResolver(loader Loader) *Resolver {
	return &Resolver{loader: loader}
}

// Resolve loads the list and user and resolves permissions. A missing list
// or user is NotFound; an empty user id is Forbidden.
func (r *Resolver) Resolve(ctx context.Context, userID, listID string) (*model.List, Permissions, error) {
	if userID == "" {
		return nil, Permissions{}, apperr.Forbidden("unauthenticated")
	}
	user, err := r.loader.GetUser(ctx, userID)
	if err != nil {
		return nil, Permissions{}, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, Permissions{}, apperr.NotFound("user %s not found", userID)
	}
	list, err := r.loader.GetList(ctx, listID)
	if err != nil {
		return nil, Permissions{}, fmt.Errorf("load list: %w", err)
	}
	if list == nil {
		return nil, Permissions{}, apperr.NotFound("list %s not found", listID)
	}
	return list, Resolve(list, userID), nil
}
