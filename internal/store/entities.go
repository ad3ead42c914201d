package store

import (
	"context"

	"github.com/dupipcom/morpheus-sub002/internal/model"
)

type TaskStore struct {
	c collection[model.Task, *model.Task]
}

func NewTaskStore(q DBTX) *TaskStore {
	return &TaskStore{c: collection[model.Task, *model.Task]{q: q, table: "tasks"}}
}

func (s *TaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	return s.c.get(ctx, id)
}

func (s *TaskStore) Find(ctx context.Context, filters ...Filter) ([]*model.Task, error) {
	return s.c.find(ctx, filters...)
}

func (s *TaskStore) ListByList(ctx context.Context, listID string) ([]*model.Task, error) {
	return s.c.find(ctx, Eq("listId", listID))
}

// ExistsByNameOrLocaleKey reports whether the list already holds a task with
// the given name or, when localeKey is set, the given locale key.
func (s *TaskStore) ExistsByNameOrLocaleKey(ctx context.Context, listID, name, localeKey string) (bool, error) {
	n, err := s.c.count(ctx, Eq("listId", listID), Eq("name", name))
	if err != nil || n > 0 {
		return n > 0, err
	}
	if localeKey == "" {
		return false, nil
	}
	n, err = s.c.count(ctx, Eq("listId", listID), Eq("localeKey", localeKey))
	return n > 0, err
}

func (s *TaskStore) Create(ctx context.Context, t *model.Task) error {
	return s.c.create(ctx, t)
}

func (s *TaskStore) Update(ctx context.Context, t *model.Task) error {
	return s.c.update(ctx, t)
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

type JobStore struct {
	c collection[model.Job, *model.Job]
}

func NewJobStore(q DBTX) *JobStore {
	return &JobStore{c: collection[model.Job, *model.Job]{q: q, table: "jobs"}}
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.c.get(ctx, id)
}

func (s *JobStore) ListByTask(ctx context.Context, taskID string) ([]*model.Job, error) {
	return s.c.find(ctx, Eq("taskId", taskID))
}

func (s *JobStore) Find(ctx context.Context, filters ...Filter) ([]*model.Job, error) {
	return s.c.find(ctx, filters...)
}

func (s *JobStore) Create(ctx context.Context, j *model.Job) error {
	return s.c.create(ctx, j)
}

func (s *JobStore) Update(ctx context.Context, j *model.Job) error {
	return s.c.update(ctx, j)
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

// DeleteByTask removes every job of a task and returns how many went.
func (s *JobStore) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	return s.c.deleteWhere(ctx, Eq("taskId", taskID))
}

type ListStore struct {
	c collection[model.List, *model.List]
}

func NewListStore(q DBTX) *ListStore {
	return &ListStore{c: collection[model.List, *model.List]{q: q, table: "lists"}}
}

func (s *ListStore) Get(ctx context.Context, id string) (*model.List, error) {
	return s.c.get(ctx, id)
}

func (s *ListStore) All(ctx context.Context) ([]*model.List, error) {
	return s.c.find(ctx)
}

// ListByMember returns the lists in which userID holds any role.
func (s *ListStore) ListByMember(ctx context.Context, userID string) ([]*model.List, error) {
	return s.c.find(ctx, HasWhere("members", "userId", userID))
}

func (s *ListStore) Create(ctx context.Context, l *model.List) error {
	return s.c.create(ctx, l)
}

func (s *ListStore) Update(ctx context.Context, l *model.List) error {
	return s.c.update(ctx, l)
}

type UserStore struct {
	c collection[model.User, *model.User]
}

func NewUserStore(q DBTX) *UserStore {
	return &UserStore{c: collection[model.User, *model.User]{q: q, table: "users"}}
}

func (s *UserStore) Get(ctx context.Context, id string) (*model.User, error) {
	return s.c.get(ctx, id)
}

func (s *UserStore) All(ctx context.Context) ([]*model.User, error) {
	return s.c.find(ctx)
}

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	return s.c.create(ctx, u)
}

func (s *UserStore) Update(ctx context.Context, u *model.User) error {
	return s.c.update(ctx, u)
}

type EntryStore struct {
	c collection[model.YearEntries, *model.YearEntries]
}

func NewEntryStore(q DBTX) *EntryStore {
	return &EntryStore{c: collection[model.YearEntries, *model.YearEntries]{q: q, table: "entries"}}
}

// Get returns the user's entries for year, or nil if none were written yet.
func (s *EntryStore) Get(ctx context.Context, userID string, year int) (*model.YearEntries, error) {
	return s.c.get(ctx, model.EntriesID(userID, year))
}

// Ledger loads the requested years into a snapshot. Missing years are
// returned as empty, unsaved documents.
func (s *EntryStore) Ledger(ctx context.Context, userID string, years ...int) (model.Ledger, error) {
	ledger := model.Ledger{}
	for _, y := range years {
		if _, ok := ledger[y]; ok {
			continue
		}
		e, err := s.Get(ctx, userID, y)
		if err != nil {
			return nil, err
		}
		if e == nil {
			e = model.NewYearEntries(userID, y)
		}
		ledger[y] = e
	}
	return ledger, nil
}

func (s *EntryStore) ListByUser(ctx context.Context, userID string) ([]*model.YearEntries, error) {
	return s.c.find(ctx, Eq("userId", userID))
}

func (s *EntryStore) ListByYear(ctx context.Context, year int) ([]*model.YearEntries, error) {
	return s.c.find(ctx, Eq("year", year))
}

// Save inserts a new year document or updates an existing one.
func (s *EntryStore) Save(ctx context.Context, e *model.YearEntries) error {
	return s.c.save(ctx, e)
}
