package model

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleOwner        Role = "OWNER"
	RoleManager      Role = "MANAGER"
	RoleCollaborator Role = "COLLABORATOR"
	RoleFollower     Role = "FOLLOWER"
)

type Member struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Cadence of a list, derived from its role tag prefix.
type Cadence string

const (
	CadenceNone   Cadence = ""
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

func CadenceOf(roleTag string) Cadence {
	switch {
	case strings.HasPrefix(roleTag, "daily."):
		return CadenceDaily
	case strings.HasPrefix(roleTag, "weekly."):
		return CadenceWeekly
	}
	return CadenceNone
}

type List struct {
	ID               string           `json:"id"`
	Name             string           `json:"name,omitempty"`
	Role             string           `json:"role"`
	Visibility       string           `json:"visibility,omitempty"`
	Members          []Member         `json:"members"`
	Budget           decimal.Decimal  `json:"budget"`
	RemainingBudget  *decimal.Decimal `json:"remainingBudget"`
	BudgetAllocation decimal.Decimal  `json:"budgetAllocation"`
	TaskIDs          []string         `json:"taskIds"`
	Tasks            []LegacyTask     `json:"tasks,omitempty"`
	TemplateTasks    []LegacyTask     `json:"templateTasks,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	Version          int64            `json:"-"`
}

// MemberRole returns the role of userID, or "" if they are not a member.
func (l *List) MemberRole(userID string) Role {
	for _, m := range l.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return ""
}

func (l *List) Cadence() Cadence { return CadenceOf(l.Role) }

func (l *List) HasTask(taskID string) bool {
	return slices.Contains(l.TaskIDs, taskID)
}

func (l *List) RemoveTask(taskID string) {
	l.TaskIDs = slices.DeleteFunc(l.TaskIDs, func(id string) bool { return id == taskID })
}
