package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	"github.com/shopspring/decimal"
)

// TaskDraft is the input of CreateTask. Name, Area and ListID are required.
type TaskDraft struct {
	ListID       string            `json:"listId"`
	Name         string            `json:"name"`
	Area         string            `json:"area"`
	Categories   []string          `json:"categories"`
	Status       status.State      `json:"status"`
	Recurrence   *recurrence.Rule  `json:"recurrence"`
	Times        int               `json:"times"`
	LocaleKey    string            `json:"localeKey"`
	Persons      []model.EntityRef `json:"persons"`
	Things       []model.EntityRef `json:"things"`
	Events       []model.EntityRef `json:"events"`
	Notes        []model.EntityRef `json:"notes"`
	Documents    []model.EntityRef `json:"documents"`
	DueDate      *time.Time        `json:"dueDate"`
	Budget       *decimal.Decimal  `json:"budget"`
	Visibility   string            `json:"visibility"`
	Quality      *int              `json:"quality"`
	Redacted     bool              `json:"redacted"`
	CandidateIDs []string          `json:"candidateIds"`
}

// TaskPatch is a sparse update. Only fields that are Set are written; a Null
// clears optional fields and is rejected for required ones. Version must be
// the version the caller read.
type TaskPatch struct {
	Version              int64                          `json:"version"`
	Name                 model.Field[string]            `json:"name,omitzero"`
	Categories           model.Field[[]string]          `json:"categories,omitzero"`
	Area                 model.Field[string]            `json:"area,omitzero"`
	Status               model.Field[status.State]      `json:"status,omitzero"`
	Recurrence           model.Field[recurrence.Rule]   `json:"recurrence,omitzero"`
	Times                model.Field[int]               `json:"times,omitzero"`
	Count                model.Field[int]               `json:"count,omitzero"`
	LocaleKey            model.Field[string]            `json:"localeKey,omitzero"`
	Persons              model.Field[[]model.EntityRef] `json:"persons,omitzero"`
	Things               model.Field[[]model.EntityRef] `json:"things,omitzero"`
	Events               model.Field[[]model.EntityRef] `json:"events,omitzero"`
	Notes                model.Field[[]model.EntityRef] `json:"notes,omitzero"`
	Documents            model.Field[[]model.EntityRef] `json:"documents,omitzero"`
	DueDate              model.Field[time.Time]         `json:"dueDate,omitzero"`
	Budget               model.Field[decimal.Decimal]   `json:"budget,omitzero"`
	Visibility           model.Field[string]            `json:"visibility,omitzero"`
	Quality              model.Field[int]               `json:"quality,omitzero"`
	Redacted             model.Field[bool]              `json:"redacted,omitzero"`
	CandidateIDs         model.Field[[]string]          `json:"candidateIds,omitzero"`
	RaisedTransactionIDs model.Field[[]string]          `json:"raisedTransactionIds,omitzero"`
}

type TaskService struct {
	base
}

func NewTaskService(s *store.Store, n Notifier, logger *slog.Logger) *TaskService {
	return &TaskService{base: newBase(s, n, logger, "tasks")}
}

func validateRule(r *recurrence.Rule) error {
	if r == nil {
		return nil
	}
	if err := recurrence.Validate(*r); err != nil {
		field := "recurrence"
		var ve *recurrence.ValidationError
		if errors.As(err, &ve) {
			field += "." + ve.Field
		}
		return apperr.New(apperr.CodeValidation, err.Error(), apperr.WithField(field), apperr.WithCause(err))
	}
	return nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (d *TaskDraft) validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Area = strings.TrimSpace(d.Area)
	switch {
	case d.ListID == "":
		return apperr.Validation("listId", "list id is required")
	case d.Name == "":
		return apperr.Validation("name", "name is required")
	case d.Area == "":
		return apperr.Validation("area", "area is required")
	case d.Times < 0:
		return apperr.Validation("times", "times must be at least 1")
	}
	return validateRule(d.Recurrence)
}

// CreateTask adds a task to a list and appends it to the list's task index.
func (s *TaskService) CreateTask(ctx context.Context, userID string, d TaskDraft) (*model.Task, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	task := &model.Task{
		ID:                   s.newID(),
		ListID:               d.ListID,
		Name:                 d.Name,
		Area:                 d.Area,
		Categories:           emptyIfNil(d.Categories),
		Status:               d.Status,
		Recurrence:           d.Recurrence,
		Times:                max(d.Times, 1),
		LocaleKey:            d.LocaleKey,
		Persons:              d.Persons,
		Things:               d.Things,
		Events:               d.Events,
		Notes:                d.Notes,
		Documents:            d.Documents,
		DueDate:              d.DueDate,
		Budget:               d.Budget,
		Visibility:           d.Visibility,
		Quality:              d.Quality,
		Redacted:             d.Redacted,
		CandidateIDs:         emptyIfNil(d.CandidateIDs),
		RaisedTransactionIDs: []string{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if !task.Status.IsSet() {
		task.Status = status.Open
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		list, perms, err := resolve(ctx, tx, userID, d.ListID)
		if err != nil {
			return err
		}
		if !perms.CanCreateTask {
			return apperr.Forbidden("user %s may not create tasks in list %s", userID, list.ID)
		}
		if err := tx.Tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		list.TaskIDs = append(list.TaskIDs, task.ID)
		list.UpdatedAt = now
		if err := tx.Lists.Update(ctx, list); err != nil {
			return storeErr(err, "list", list.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", task.ID, "list_id", task.ListID, "user_id", userID)
	s.notify(task.ListID, "task", "created", task.ID)
	return task, nil
}

// UpdateTask applies a sparse patch. Status is written only when the patch
// carries it.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID string, p TaskPatch) (*model.Task, error) {
	var task *model.Task
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		task, err = loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		_, perms, err := resolve(ctx, tx, userID, task.ListID)
		if err != nil {
			return err
		}
		if !perms.CanModifyTask {
			return apperr.Forbidden("user %s may not modify task %s", userID, taskID)
		}
		if err := checkVersion("task", taskID, task.Version, p.Version); err != nil {
			return err
		}
		if err := p.apply(task); err != nil {
			return err
		}
		task.UpdatedAt = s.now()
		if err := tx.Tasks.Update(ctx, task); err != nil {
			return storeErr(err, "task", taskID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(task.ListID, "task", "updated", task.ID)
	return task, nil
}

func requiredString(f model.Field[string], field string, dst *string) error {
	if !f.Set {
		return nil
	}
	v := strings.TrimSpace(f.Value)
	if f.Null || v == "" {
		return apperr.Validation(field, "%s is required", field)
	}
	*dst = v
	return nil
}

func setSlice[T any](f model.Field[[]T], dst *[]T) {
	if f.Set {
		*dst = f.Value
	}
}

func setPtr[T any](f model.Field[T], dst **T) {
	if !f.Set {
		return
	}
	if f.Null {
		*dst = nil
		return
	}
	v := f.Value
	*dst = &v
}

// apply validates every field first so a rejected patch leaves t untouched.
func (p TaskPatch) apply(t *model.Task) error {
	next := *t

	if err := requiredString(p.Name, "name", &next.Name); err != nil {
		return err
	}
	if err := requiredString(p.Area, "area", &next.Area); err != nil {
		return err
	}
	if p.Status.Set {
		if p.Status.Null || !p.Status.Value.IsSet() {
			return apperr.Validation("status", "status cannot be cleared")
		}
		next.Status = p.Status.Value
	}
	if p.Recurrence.Set {
		if p.Recurrence.Null {
			next.Recurrence = nil
		} else {
			rule := p.Recurrence.Value
			if err := validateRule(&rule); err != nil {
				return err
			}
			next.Recurrence = &rule
		}
	}
	if p.Times.Set {
		if p.Times.Null || p.Times.Value < 1 {
			return apperr.Validation("times", "times must be at least 1")
		}
		next.Times = p.Times.Value
	}
	if p.Count.Set {
		if p.Count.Null {
			next.Count = 0
		} else {
			next.Count = p.Count.Value
		}
	}
	if next.Count < 0 || next.Count > next.Times {
		return apperr.Validation("count", "count %d must be between 0 and times (%d)", next.Count, next.Times)
	}
	if p.LocaleKey.Set {
		next.LocaleKey = p.LocaleKey.Value
	}
	if p.Visibility.Set {
		next.Visibility = p.Visibility.Value
	}
	if p.Redacted.Set {
		next.Redacted = p.Redacted.Value
	}
	setSlice(p.Categories, &next.Categories)
	setSlice(p.Persons, &next.Persons)
	setSlice(p.Things, &next.Things)
	setSlice(p.Events, &next.Events)
	setSlice(p.Notes, &next.Notes)
	setSlice(p.Documents, &next.Documents)
	setSlice(p.CandidateIDs, &next.CandidateIDs)
	setSlice(p.RaisedTransactionIDs, &next.RaisedTransactionIDs)
	setPtr(p.DueDate, &next.DueDate)
	setPtr(p.Budget, &next.Budget)
	setPtr(p.Quality, &next.Quality)

	next.Categories = emptyIfNil(next.Categories)
	next.CandidateIDs = emptyIfNil(next.CandidateIDs)
	next.RaisedTransactionIDs = emptyIfNil(next.RaisedTransactionIDs)

	*t = next
	return nil
}

// DeleteTask removes the task and its jobs and drops it from the list index.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	var listID string
	var jobs int64
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		task, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		list, perms, err := resolve(ctx, tx, userID, task.ListID)
		if err != nil {
			return err
		}
		if !perms.CanModifyTask {
			return apperr.Forbidden("user %s may not delete task %s", userID, taskID)
		}
		listID = list.ID

		jobs, err = tx.Jobs.DeleteByTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("delete jobs of task %s: %w", taskID, err)
		}
		if err := tx.Tasks.Delete(ctx, taskID); err != nil {
			return storeErr(err, "task", taskID)
		}
		if list.HasTask(taskID) {
			list.RemoveTask(taskID)
			list.UpdatedAt = s.now()
			if err := tx.Lists.Update(ctx, list); err != nil {
				return storeErr(err, "list", list.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("task deleted", "task_id", taskID, "list_id", listID, "jobs_deleted", jobs)
	s.notify(listID, "task", "deleted", taskID)
	return nil
}
