package models

import (
	"fmt"
	"time"
)

// CandidateAttempt statuses, in lifecycle order.
const (
	AttemptStatusInvited   = "INVITED"
	AttemptStatusStarted   = "STARTED"
	AttemptStatusCompleted = "COMPLETED"
	AttemptStatusEvaluated = "EVALUATED"
)

// attemptStatusRank orders the attempt lifecycle chain. Transitions may only
// move one step forward through it.
var attemptStatusRank = map[string]int{
	AttemptStatusInvited:   0,
	AttemptStatusStarted:   1,
	AttemptStatusCompleted: 2,
	AttemptStatusEvaluated: 3,
}

// IllegalTransitionError reports a rejected lifecycle transition.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s status cannot move from %s to %s", e.Entity, e.From, e.To)
}

// CandidateAttempt represents one candidate's single run at one assessment.
type CandidateAttempt struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Status       string      `gorm:"size:16;not null;default:INVITED" json:"status"`
	Language     string      `gorm:"size:64" json:"language"`
	RepoURL      string      `gorm:"size:512" json:"repo_url"`
	RepoFullName string      `gorm:"size:255" json:"repo_full_name"`
	CandidateID  uint        `gorm:"index:idx_candidate_assessment,unique;not null" json:"candidate_id"`
	Candidate    Candidate   `json:"-"`
	AssessmentID uint        `gorm:"index:idx_candidate_assessment,unique;not null" json:"assessment_id"`
	Assessment   Assessment  `json:"-"`
	EvaluationID *uint       `json:"evaluation_id"`
	Evaluation   *Evaluation `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	StartedAt    *time.Time  `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at"`
	EvaluatedAt  *time.Time  `json:"evaluated_at"`
}

// Advance moves the attempt one step forward through the lifecycle chain and
// stamps the matching timestamp if it is not set yet. Any transition other than
// the immediate next step is rejected with an IllegalTransitionError before
// anything is mutated.
func (a *CandidateAttempt) Advance(next string, at time.Time) error {
	fromRank, fromKnown := attemptStatusRank[a.Status]
	toRank, toKnown := attemptStatusRank[next]
	if !fromKnown || !toKnown || toRank != fromRank+1 {
		return &IllegalTransitionError{Entity: "attempt", From: a.Status, To: next}
	}

	a.Status = next
	switch next {
	case AttemptStatusStarted:
		if a.StartedAt == nil {
			a.StartedAt = &at
		}
	case AttemptStatusCompleted:
		if a.CompletedAt == nil {
			a.CompletedAt = &at
		}
	case AttemptStatusEvaluated:
		if a.EvaluatedAt == nil {
			a.EvaluatedAt = &at
		}
	}

	return nil
}

// IsOverdue reports whether a STARTED attempt has run past the assessment's
// allowed duration. Attempts in any other status are never overdue.
func (a CandidateAttempt) IsOverdue(assessment Assessment, reference time.Time) bool {
	if a.Status != AttemptStatusStarted || a.StartedAt == nil {
		return false
	}

	return reference.After(a.StartedAt.Add(assessment.Duration()))
}
