// Package service holds the engine operations that mutate tasks, jobs and
// period entries on behalf of an authenticated user.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/authz"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	"github.com/google/uuid"
)

// Notifier is told about committed changes so connected clients of a list
// can refresh.
type Notifier interface {
	Notify(listID, entity, action, id string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, string, string) {}

// base carries the collaborators every service shares.
type base struct {
	store    *store.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func newBase(s *store.Store, n Notifier, logger *slog.Logger, component string) base {
	if n == nil {
		n = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		store:    s,
		notifier: n,
		logger:   logger.With("component", component),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func (b base) notify(listID, entity, action, id string) {
	b.notifier.Notify(listID, entity, action, id)
}

// resolve loads the list and the caller's permissions inside tx.
func resolve(ctx context.Context, tx *store.Store, userID, listID string) (*model.List, authz.Permissions, error) {
	return authz.NewResolver(tx).Resolve(ctx, userID, listID)
}

// loadTask returns NotFound when the task is absent.
func loadTask(ctx context.Context, tx *store.Store, id string) (*model.Task, error) {
	t, err := tx.Tasks.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if t == nil {
		return nil, apperr.NotFound("task %s not found", id)
	}
	return t, nil
}

func loadJob(ctx context.Context, tx *store.Store, id string) (*model.Job, error) {
	j, err := tx.Jobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if j == nil {
		return nil, apperr.NotFound("job %s not found", id)
	}
	return j, nil
}

// checkVersion rejects a patch built from an outdated read.
func checkVersion(entity, id string, have, want int64) error {
	if want == 0 {
		return apperr.Validation("version", "version is required")
	}
	if have != want {
		return apperr.Conflict("version", "%s %s is at version %d, not %d", entity, id, have, want)
	}
	return nil
}

// storeErr maps store write failures onto the engine taxonomy.
func storeErr(err error, entity, id string) error {
	switch {
	case errors.Is(err, store.ErrStale):
		return apperr.New(apperr.CodeConflict, fmt.Sprintf("%s %s was modified concurrently", entity, id),
			apperr.WithField("version"), apperr.WithCause(err))
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("%s %s not found", entity, id), apperr.WithCause(err))
	}
	return err
}
