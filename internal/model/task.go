package model

import (
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/recurrence"
	"github.com/dupipcom/morpheus-sub002/internal/status"
	"github.com/shopspring/decimal"
)

type EntityRef struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Task struct {
	ID                   string           `json:"id"`
	ListID               string           `json:"listId"`
	Name                 string           `json:"name"`
	Categories           []string         `json:"categories"`
	Area                 string           `json:"area"`
	Status               status.State     `json:"status"`
	Recurrence           *recurrence.Rule `json:"recurrence,omitempty"`
	Times                int              `json:"times"`
	Count                int              `json:"count"`
	LocaleKey            string           `json:"localeKey,omitempty"`
	Persons              []EntityRef      `json:"persons,omitempty"`
	Things               []EntityRef      `json:"things,omitempty"`
	Events               []EntityRef      `json:"events,omitempty"`
	Notes                []EntityRef      `json:"notes,omitempty"`
	Documents            []EntityRef      `json:"documents,omitempty"`
	DueDate              *time.Time       `json:"dueDate,omitempty"`
	Budget               *decimal.Decimal `json:"budget,omitempty"`
	Visibility           string           `json:"visibility,omitempty"`
	Quality              *int             `json:"quality,omitempty"`
	Redacted             bool             `json:"redacted,omitempty"`
	CandidateIDs         []string         `json:"candidateIds"`
	RaisedTransactionIDs []string         `json:"raisedTransactionIds"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
	Version              int64            `json:"-"`
}

// Snapshot is the copy of a task recorded in a period entry's task log.
func (t *Task) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		ID:         t.ID,
		ListID:     t.ListID,
		Name:       t.Name,
		Area:       t.Area,
		Categories: t.Categories,
		Status:     t.Status.String(),
		Count:      t.Count,
		Times:      t.Times,
		LocaleKey:  t.LocaleKey,
	}
}

// LegacyTask is an item of a list's embedded tasks/templateTasks arrays.
// Fields are loose because older writers stored whatever they had.
type LegacyTask struct {
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name"`
	Categories []string          `json:"categories,omitempty"`
	Area       string            `json:"area,omitempty"`
	Status     string            `json:"status,omitempty"`
	Recurrence *LegacyRecurrence `json:"recurrence,omitempty"`
	Times      int               `json:"times,omitempty"`
	Count      int               `json:"count,omitempty"`
	LocaleKey  string            `json:"localeKey,omitempty"`
	Persons    []EntityRef       `json:"persons,omitempty"`
	Things     []EntityRef       `json:"things,omitempty"`
	Events     []EntityRef       `json:"events,omitempty"`
	Notes      []EntityRef       `json:"notes,omitempty"`
	Documents  []EntityRef       `json:"documents,omitempty"`
	Visibility string            `json:"visibility,omitempty"`
}
