package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/authz"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/store"
)

// JobDraft is the input of CreateJob. An empty WorkerID assigns the job to
// the caller.
type JobDraft struct {
	TaskID     string          `json:"taskId"`
	WorkerID   string          `json:"workerId"`
	SelfReview json.RawMessage `json:"selfReview"`
}

// JobPatch is a sparse update of a job. Version must be the version the
// caller read.
type JobPatch struct {
	Version          int64                        `json:"version"`
	Status           model.Field[model.JobStatus] `json:"status,omitzero"`
	SelfReview       model.Field[json.RawMessage] `json:"selfReview,omitzero"`
	PeerReview       model.Field[json.RawMessage] `json:"peerReview,omitzero"`
	ManagerReview    model.Field[json.RawMessage] `json:"managerReview,omitzero"`
	ReviewerIDs      model.Field[[]string]        `json:"reviewerIds,omitzero"`
	ReviewersNoteIDs model.Field[[]string]        `json:"reviewersNoteIds,omitzero"`
}

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobRequested:  {model.JobInProgress, model.JobValidating, model.JobAccepted, model.JobRejected},
	model.JobInProgress: {model.JobValidating, model.JobAccepted, model.JobRejected},
	model.JobValidating: {model.JobInProgress, model.JobAccepted, model.JobRejected},
}

func canTransition(from, to model.JobStatus) bool {
	return slices.Contains(transitions[from], to)
}

type JobService struct {
	base
	ledger *LedgerService
}

// NewJobService wires a job service. Accepted jobs are recorded as
// completions through ledger.
func NewJobService(s *store.Store, ledger *LedgerService, n Notifier, logger *slog.Logger) *JobService {
	return &JobService{base: newBase(s, n, logger, "jobs"), ledger: ledger}
}

// CreateJob opens a REQUESTED job for a worker on a task.
func (s *JobService) CreateJob(ctx context.Context, userID string, d JobDraft) (*model.Job, error) {
	if d.TaskID == "" {
		return nil, apperr.Validation("taskId", "task id is required")
	}
	if d.WorkerID == "" {
		d.WorkerID = userID
	}

	var job *model.Job
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		task, err := loadTask(ctx, tx, d.TaskID)
		if err != nil {
			return err
		}
		list, perms, err := resolve(ctx, tx, userID, task.ListID)
		if err != nil {
			return err
		}
		worker, err := tx.Users.Get(ctx, d.WorkerID)
		if err != nil {
			return fmt.Errorf("load worker: %w", err)
		}
		if worker == nil {
			return apperr.NotFound("worker %s not found", d.WorkerID)
		}
		if !perms.CanCreateJob(d.WorkerID) {
			return apperr.Forbidden("user %s may not create a job for %s", userID, d.WorkerID)
		}
		if authz.RoleOf(list, d.WorkerID) == "" {
			return apperr.Validation("workerId", "worker %s is not a member of list %s", d.WorkerID, list.ID)
		}
		if len(d.SelfReview) > 0 && d.WorkerID != userID {
			return apperr.Conflict("selfReview", "only the worker may write the self review")
		}

		now := s.now()
		job = &model.Job{
			ID:               s.newID(),
			TaskID:           task.ID,
			ListID:           list.ID,
			WorkerID:         d.WorkerID,
			Status:           model.JobRequested,
			SelfReview:       d.SelfReview,
			ReviewerIDs:      []string{},
			ReviewersNoteIDs: []string{},
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("job created", "job_id", job.ID, "task_id", job.TaskID, "worker_id", job.WorkerID)
	s.notify(job.ListID, "job", "created", job.ID)
	return job, nil
}

// authorize checks every part of p against the caller's permissions before
// anything is written. Status is checked first so a self-validation attempt
// is always reported as Forbidden.
func (p JobPatch) authorize(job *model.Job, perms authz.Permissions) error {
	if !perms.IsMember() {
		return apperr.Forbidden("user %s is not a member of list %s", perms.UserID, job.ListID)
	}

	if p.Status.Set {
		to := p.Status.Value
		if p.Status.Null || !to.Valid() {
			return apperr.Validation("status", "invalid job status %q", to)
		}
		switch to {
		case model.JobAccepted, model.JobRejected:
			if !perms.CanValidateJob(job.WorkerID) {
				return apperr.Forbidden("user %s may not validate job %s", perms.UserID, job.ID)
			}
		case model.JobInProgress, model.JobValidating:
			if !perms.CanWorkJob(job.WorkerID) {
				return apperr.Forbidden("user %s may not work on job %s", perms.UserID, job.ID)
			}
		}
		if to != job.Status && !canTransition(job.Status, to) {
			return apperr.Validation("status", "job %s cannot move from %s to %s", job.ID, job.Status, to)
		}
	}

	if p.SelfReview.Set && perms.UserID != job.WorkerID {
		return apperr.Conflict("selfReview", "only the worker may write the self review")
	}
	managerOnly := []struct {
		set  bool
		name string
	}{
		{p.PeerReview.Set, "peerReview"},
		{p.ManagerReview.Set, "managerReview"},
		{p.ReviewerIDs.Set, "reviewerIds"},
		{p.ReviewersNoteIDs.Set, "reviewersNoteIds"},
	}
	for _, f := range managerOnly {
		if f.set && !perms.IsManager() {
			return apperr.Conflict(f.name, "only owners and managers may write %s", f.name)
		}
	}
	return nil
}

func (p JobPatch) apply(job *model.Job) {
	if p.Status.Set {
		job.Status = p.Status.Value
	}
	raw := func(f model.Field[json.RawMessage], dst *json.RawMessage) {
		if f.Set {
			*dst = f.Value
		}
	}
	raw(p.SelfReview, &job.SelfReview)
	raw(p.PeerReview, &job.PeerReview)
	raw(p.ManagerReview, &job.ManagerReview)
	if p.ReviewerIDs.Set {
		job.ReviewerIDs = emptyIfNil(p.ReviewerIDs.Value)
	}
	if p.ReviewersNoteIDs.Set {
		job.ReviewersNoteIDs = emptyIfNil(p.ReviewersNoteIDs.Value)
	}
}

// UpdateJob applies p all-or-nothing. Moving a job to ACCEPTED records a
// completion of its task for the worker in the same transaction.
func (s *JobService) UpdateJob(ctx context.Context, userID, jobID string, p JobPatch) (*model.Job, error) {
	var job *model.Job
	var accepted bool
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		job, err = loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		_, perms, err := resolve(ctx, tx, userID, job.ListID)
		if err != nil {
			return err
		}
		if err := p.authorize(job, perms); err != nil {
			return err
		}
		if err := checkVersion("job", jobID, job.Version, p.Version); err != nil {
			return err
		}

		before := job.Status
		p.apply(job)
		job.UpdatedAt = s.now()
		if err := tx.Jobs.Update(ctx, job); err != nil {
			return storeErr(err, "job", jobID)
		}

		accepted = before != model.JobAccepted && job.Status == model.JobAccepted
		if accepted && s.ledger != nil {
			if _, err := s.ledger.record(ctx, tx, job.WorkerID, job.TaskID, s.now(), 1); err != nil {
				return fmt.Errorf("record completion: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if accepted {
		s.logger.Info("job accepted", "job_id", job.ID, "worker_id", job.WorkerID, "validator_id", userID)
	}
	s.notify(job.ListID, "job", "updated", job.ID)
	return job, nil
}

func (s *JobService) DeleteJob(ctx context.Context, userID, jobID string) error {
	var listID string
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		job, err := loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		_, perms, err := resolve(ctx, tx, userID, job.ListID)
		if err != nil {
			return err
		}
		if !perms.CanDeleteJob {
			return apperr.Forbidden("user %s may not delete job %s", userID, jobID)
		}
		listID = job.ListID
		if err := tx.Jobs.Delete(ctx, jobID); err != nil {
			return storeErr(err, "job", jobID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(listID, "job", "deleted", jobID)
	return nil
}
