package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/stretchr/testify/require"
)

func TestCreateJobPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Dishes")

	tests := []struct {
		name   string
		user   string
		worker string
		code   apperr.Code
	}{
		{"collaborator for self", "collab", "", ""},
		{"collaborator for other", "collab", "manager", apperr.CodeForbidden},
		{"manager delegates", "manager", "collab", ""},
		{"owner delegates", "owner", "manager", ""},
		{"follower for self", "follower", "", apperr.CodeForbidden},
		{"non-member", "stranger", "", apperr.CodeForbidden},
		{"unknown worker", "owner", "ghost", apperr.CodeNotFound},
		{"worker outside list", "owner", "stranger", apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := f.jobs.CreateJob(ctx, tt.user, JobDraft{TaskID: task.ID, WorkerID: tt.worker})
			if tt.code != "" {
				requireCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			want := tt.worker
			if want == "" {
				want = tt.user
			}
			require.Equal(t, want, job.WorkerID)
			require.Equal(t, model.JobRequested, job.Status)
			require.Equal(t, "l1", job.ListID)
			require.Equal(t, []string{}, job.ReviewerIDs)
		})
	}

	_, err := f.jobs.CreateJob(ctx, "owner", JobDraft{TaskID: "missing"})
	requireCode(t, err, apperr.CodeNotFound)
	_, err = f.jobs.CreateJob(ctx, "owner", JobDraft{})
	requireCode(t, err, apperr.CodeValidation)
}

func TestCreateJobSelfReviewOnlyByWorker(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, "Dishes")
	review := json.RawMessage(`{"note":"done"}`)

	_, err := f.jobs.CreateJob(context.Background(), "manager", JobDraft{TaskID: task.ID, WorkerID: "collab", SelfReview: review})
	requireCode(t, err, apperr.CodeConflict)
	require.Equal(t, "selfReview", apperr.FieldOf(err))

	job, err := f.jobs.CreateJob(context.Background(), "collab", JobDraft{TaskID: task.ID, SelfReview: review})
	require.NoError(t, err)
	require.JSONEq(t, `{"note":"done"}`, string(job.SelfReview))
}

func TestWorkerCannotSelfValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Laundry")

	job, err := f.jobs.CreateJob(ctx, "owner", JobDraft{TaskID: task.ID})
	require.NoError(t, err)

	for _, st := range []model.JobStatus{model.JobAccepted, model.JobRejected} {
		_, err := f.jobs.UpdateJob(ctx, "owner", job.ID, JobPatch{
			Version:    job.Version,
			Status:     model.Some(st),
			PeerReview: model.Some(json.RawMessage(`{"score":5}`)),
		})
		requireCode(t, err, apperr.CodeForbidden)
	}

	stored, err := f.store.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobRequested, stored.Status)
	require.Empty(t, stored.PeerReview)
	require.Equal(t, int64(1), stored.Version)

	storedTask, err := f.store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Zero(t, storedTask.Count)
}

func TestReviewFieldPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Garden")
	job, err := f.jobs.CreateJob(ctx, "collab", JobDraft{TaskID: task.ID})
	require.NoError(t, err)

	got, err := f.jobs.UpdateJob(ctx, "manager", job.ID, JobPatch{
		Version:     job.Version,
		PeerReview:  model.Some(json.RawMessage(`{"score":4}`)),
		ReviewerIDs: model.Some([]string{"manager"}),
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"score":4}`, string(got.PeerReview))
	require.Equal(t, []string{"manager"}, got.ReviewerIDs)

	tests := []struct {
		name  string
		user  string
		patch JobPatch
		field string
	}{
		{"collaborator peer review", "collab", JobPatch{Version: got.Version, PeerReview: model.Some(json.RawMessage(`{}`))}, "peerReview"},
		{"collaborator manager review", "collab", JobPatch{Version: got.Version, ManagerReview: model.Some(json.RawMessage(`{}`))}, "managerReview"},
		{"collaborator reviewers", "collab", JobPatch{Version: got.Version, ReviewerIDs: model.Some([]string{"collab"})}, "reviewerIds"},
		{"collaborator notes", "collab", JobPatch{Version: got.Version, ReviewersNoteIDs: model.Some([]string{"n1"})}, "reviewersNoteIds"},
		{"manager self review", "manager", JobPatch{Version: got.Version, SelfReview: model.Some(json.RawMessage(`{}`))}, "selfReview"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.jobs.UpdateJob(ctx, tt.user, job.ID, tt.patch)
			requireCode(t, err, apperr.CodeConflict)
			require.Equal(t, tt.field, apperr.FieldOf(err))
		})
	}

	got, err = f.jobs.UpdateJob(ctx, "collab", job.ID, JobPatch{
		Version:    got.Version,
		SelfReview: model.Some(json.RawMessage(`{"note":"weeded"}`)),
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Version)
	require.JSONEq(t, `{"score":4}`, string(got.PeerReview))

	_, err = f.jobs.UpdateJob(ctx, "stranger", job.ID, JobPatch{Version: got.Version, PeerReview: model.Some(json.RawMessage(`{}`))})
	requireCode(t, err, apperr.CodeForbidden)
}

func TestJobWorkflowAcceptRecordsCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Mow")
	job, err := f.jobs.CreateJob(ctx, "collab", JobDraft{TaskID: task.ID})
	require.NoError(t, err)

	_, err = f.jobs.UpdateJob(ctx, "follower", job.ID, JobPatch{Version: job.Version, Status: model.Some(model.JobInProgress)})
	requireCode(t, err, apperr.CodeForbidden)

	job, err = f.jobs.UpdateJob(ctx, "collab", job.ID, JobPatch{Version: job.Version, Status: model.Some(model.JobInProgress)})
	require.NoError(t, err)
	job, err = f.jobs.UpdateJob(ctx, "collab", job.ID, JobPatch{Version: job.Version, Status: model.Some(model.JobValidating)})
	require.NoError(t, err)

	job, err = f.jobs.UpdateJob(ctx, "manager", job.ID, JobPatch{Version: job.Version, Status: model.Some(model.JobAccepted)})
	require.NoError(t, err)
	require.Equal(t, model.JobAccepted, job.Status)
	require.Equal(t, event{"l1", "job", "updated", job.ID}, f.events.last())

	storedTask, err := f.store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 1, storedTask.Count)
	require.Equal(t, status.Done, storedTask.Status)

	entries, err := f.store.Entries.Get(ctx, "collab", 2026)
	require.NoError(t, err)
	require.NotNil(t, entries)
	day := entries.Day("2026-03-04")
	require.NotNil(t, day)
	require.Equal(t, "26.67", day.Earnings)
	require.True(t, day.Tasks.Contains(task.ID))
	require.Equal(t, "0.00", f.list(t).RemainingBudget.StringFixed(2))

	for _, tt := range []struct {
		user string
		to   model.JobStatus
	}{
		{"manager", model.JobRejected},
		{"collab", model.JobInProgress},
	} {
		_, err = f.jobs.UpdateJob(ctx, tt.user, job.ID, JobPatch{Version: job.Version, Status: model.Some(tt.to)})
		requireCode(t, err, apperr.CodeValidation)
		require.Equal(t, "status", apperr.FieldOf(err))
	}
}

func TestUpdateJobStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Sweep")
	job, err := f.jobs.CreateJob(ctx, "collab", JobDraft{TaskID: task.ID})
	require.NoError(t, err)

	_, err = f.jobs.UpdateJob(ctx, "collab", job.ID, JobPatch{Version: job.Version, Status: model.Some(model.JobInProgress)})
	require.NoError(t, err)

	_, err = f.jobs.UpdateJob(ctx, "collab", job.ID, JobPatch{Version: job.Version, Status: model.Some(model.JobValidating)})
	requireCode(t, err, apperr.CodeConflict)
	require.Equal(t, "version", apperr.FieldOf(err))
}

func TestDeleteJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Vacuum")
	job, err := f.jobs.CreateJob(ctx, "collab", JobDraft{TaskID: task.ID})
	require.NoError(t, err)

	requireCode(t, f.jobs.DeleteJob(ctx, "collab", job.ID), apperr.CodeForbidden)
	require.NoError(t, f.jobs.DeleteJob(ctx, "owner", job.ID))
	require.Equal(t, event{"l1", "job", "deleted", job.ID}, f.events.last())
	requireCode(t, f.jobs.DeleteJob(ctx, "owner", job.ID), apperr.CodeNotFound)
}
