package migration

import (
	"fmt"
	"time"

	"github.com/orgkit/orgmover/internal/orgmembership"
)

const (
	stepFailureTemplateConstant    = "step %s failed: %v"
	taskNotPendingTemplateConstant = "task for account %s is %s: only pending tasks can start"
	taskNotRunningTemplateConstant = "task for account %s is %s: only in-progress tasks can terminate"
)

// StepFailure captures which step halted a task and why.
type StepFailure struct {
	Step           Step
	Classification orgmembership.Classification
	Cause          error
	OccurredAt     time.Time
}

// Error renders the failed step and underlying cause.
func (failure StepFailure) Error() string {
	return fmt.Sprintf(stepFailureTemplateConstant, failure.Step, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure StepFailure) Unwrap() error {
	return failure.Cause
}

// Task tracks one account through the migration protocol.
type Task struct {
	AccountID   string
	Step        Step
	Status      Status
	HandshakeID string
	Failure     *StepFailure
}

// NewTask creates a pending task positioned at the given starting step.
func NewTask(accountIdentifier string, startStep Step) *Task {
	return &Task{AccountID: accountIdentifier, Step: startStep, Status: StatusPending}
}

func (task *Task) start() error {
	if task.Status != StatusPending {
		return fmt.Errorf(taskNotPendingTemplateConstant, task.AccountID, task.Status)
	}
	task.Status = StatusInProgress
	return nil
}

func (task *Task) succeed() error {
	if task.Status != StatusInProgress {
		return fmt.Errorf(taskNotRunningTemplateConstant, task.AccountID, task.Status)
	}
	task.Status = StatusSucceeded
	return nil
}

func (task *Task) fail(failedStep Step, cause error, occurredAt time.Time) error {
	if task.Status != StatusInProgress {
		return fmt.Errorf(taskNotRunningTemplateConstant, task.AccountID, task.Status)
	}
	task.Status = StatusFailed
	task.Failure = &StepFailure{
		Step:           failedStep,
		Classification: orgmembership.ClassificationOf(cause),
		Cause:          cause,
		OccurredAt:     occurredAt,
	}
	return nil
}

// Orphaned reports whether the task failed after leaving the source
// organization but before landing in the target OU.
func (task *Task) Orphaned() bool {
	return task.Status == StatusFailed && task.Failure != nil && task.Failure.Step >= StepRemoveFromSourceOrg
}
