package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dupipcom/morpheus-sub002/internal/model"
)

// Store groups the typed stores over one querier. Inside WithTx every store
// shares the transaction.
type Store struct {
	db *sql.DB

	Tasks     *TaskStore
	Jobs      *JobStore
	Lists     *ListStore
	Users     *UserStore
	Entries   *EntryStore
	Snapshots *SnapshotStore
}

func New(db *sql.DB) *Store {
	s := bind(db)
	s.db = db
	return s
}

func bind(q DBTX) *Store {
	return &Store{
		Tasks:     NewTaskStore(q),
		Jobs:      NewJobStore(q),
		Lists:     NewListStore(q),
		Users:     NewUserStore(q),
		Entries:   NewEntryStore(q),
		Snapshots: NewSnapshotStore(q),
	}
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// Called on a transaction-bound Store it runs fn directly.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetList(ctx context.Context, id string) (*model.List, error) {
	return s.Lists.Get(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.Users.Get(ctx, id)
}
