package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/database"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

type event struct {
	listID, entity, action, id string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Notify(listID, entity, action, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{listID, entity, action, id})
}

func (r *recorder) last() event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return event{}
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	store  *store.Store
	tasks  *TaskService
	jobs   *JobService
	ledger *LedgerService
	events *recorder
}

// newFixture seeds list l1 (daily, budget 300, 50% allocation) with one
// member per role, plus a user who belongs to no list.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	ctx := context.Background()
	for _, id := range []string{"owner", "manager", "collab", "follower", "stranger"} {
		require.NoError(t, s.Users.Create(ctx, &model.User{
			ID:               id,
			Equity:           decimal.NewFromInt(1000),
			AvailableBalance: decimal.NewFromInt(100),
		}))
	}
	require.NoError(t, s.Lists.Create(ctx, &model.List{
		ID:   "l1",
		Role: "daily.default",
		Members: []model.Member{
			{UserID: "owner", Role: model.RoleOwner},
			{UserID: "manager", Role: model.RoleManager},
			{UserID: "collab", Role: model.RoleCollaborator},
			{UserID: "follower", Role: model.RoleFollower},
		},
		Budget:           decimal.NewFromInt(300),
		BudgetAllocation: decimal.NewFromInt(50),
		TaskIDs:          []string{},
	}))

	rec := &recorder{}
	logger := slog.New(slog.DiscardHandler)
	f := &fixture{store: s, events: rec}
	f.tasks = NewTaskService(s, rec, logger)
	f.ledger = NewLedgerService(s, rec, logger)
	f.jobs = NewJobService(s, f.ledger, rec, logger)
	for _, b := range []*base{&f.tasks.base, &f.ledger.base, &f.jobs.base} {
		b.now = func() time.Time { return testNow }
	}
	return f
}

func (f *fixture) createTask(t *testing.T, name string) *model.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), "owner", TaskDraft{ListID: "l1", Name: name, Area: "body"})
	require.NoError(t, err)
	return task
}

func (f *fixture) list(t *testing.T) *model.List {
	t.Helper()
	l, err := f.store.Lists.Get(context.Background(), "l1")
	require.NoError(t, err)
	return l
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.CodeOf(err), err.Error())
}
