package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orgkit/orgmover/internal/orgmembership"
)

const (
	taskRunnerMissingMessageConstant   = "task runner not configured"
	failureSinkMissingMessageConstant  = "failure sink not configured"
	negativeMaxFailuresMessageConstant = "max failures must be non-negative"
	failureRecordErrorTemplateConstant = "unable to surface failure record: %w"
	breakerTrippedLogMessageConstant   = "Stopping batch: failure threshold reached"
	batchStartedLogMessageConstant     = "Batch run started"
	batchCancelledLogMessageConstant   = "Batch run cancelled"
	logFieldRunConstant                = "run_id"
	logFieldFailureCountConstant       = "failure_count"
	logFieldMaxFailuresConstant        = "max_failures"
	logFieldBatchAccountCountConstant  = "account_count"
	logFieldBatchStartStepConstant     = "start_step"
)

// TaskRunner drives one task to a terminal status.
type TaskRunner interface {
	Run(executionContext context.Context, task *Task) error
}

// TaskOutcome is the reportable result of one task.
type TaskOutcome struct {
	AccountID      string
	Status         Status
	FailedStep     Step
	Classification orgmembership.Classification
	Error          string
	Orphaned       bool
}

// BatchSummary aggregates a batch run's outcomes.
type BatchSummary struct {
	RunID             string
	SucceededCount    int
	FailedCount       int
	NotAttemptedCount int
	BreakerTripped    bool
	Outcomes          []TaskOutcome
}

// FailedAccountIdentifiers lists accounts whose task terminated Failed, in
// input order.
func (summary BatchSummary) FailedAccountIdentifiers() []string {
	failedIdentifiers := make([]string, 0, summary.FailedCount)
	for _, outcome := range summary.Outcomes {
		if outcome.Status == StatusFailed {
			failedIdentifiers = append(failedIdentifiers, outcome.AccountID)
		}
	}
	return failedIdentifiers
}

// OrphanedAccountIdentifiers lists accounts that failed after removal from the
// source organization and before landing in the target OU.
func (summary BatchSummary) OrphanedAccountIdentifiers() []string {
	orphanedIdentifiers := make([]string, 0, summary.FailedCount)
	for _, outcome := range summary.Outcomes {
		if outcome.Orphaned {
			orphanedIdentifiers = append(orphanedIdentifiers, outcome.AccountID)
		}
	}
	return orphanedIdentifiers
}

// OrchestratorDependencies describes required collaborators for batch runs.
type OrchestratorDependencies struct {
	Logger      *zap.Logger
	TaskRunner  TaskRunner
	FailureSink FailureSink
}

// Orchestrator processes a batch's tasks strictly in input order and enforces
// the max-failures circuit breaker.
type Orchestrator struct {
	logger      *zap.Logger
	taskRunner  TaskRunner
	failureSink FailureSink
	maxFailures int
}

var (
	errTaskRunnerMissing   = errors.New(taskRunnerMissingMessageConstant)
	errFailureSinkMissing  = errors.New(failureSinkMissingMessageConstant)
	errNegativeMaxFailures = errors.New(negativeMaxFailuresMessageConstant)
)

// NewOrchestrator constructs an Orchestrator with the provided dependencies.
func NewOrchestrator(dependencies OrchestratorDependencies, maxFailures int) (*Orchestrator, error) {
	if dependencies.TaskRunner == nil {
		return nil, errTaskRunnerMissing
	}
	if dependencies.FailureSink == nil {
		return nil, errFailureSinkMissing
	}
	if maxFailures < 0 {
		return nil, errNegativeMaxFailures
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		logger:      logger,
		taskRunner:  dependencies.TaskRunner,
		failureSink: dependencies.FailureSink,
		maxFailures: maxFailures,
	}, nil
}

// Run processes accounts sequentially from startStep. A task already running
// always reaches a terminal status before the breaker is evaluated; once the
// failure count reaches the configured ceiling, remaining tasks stay pending
// and are reported as not attempted.
func (orchestrator *Orchestrator) Run(executionContext context.Context, accountIdentifiers []string, startStep Step) (BatchSummary, error) {
	runIdentifier := uuid.NewString()

	tasks := make([]*Task, 0, len(accountIdentifiers))
	for _, accountIdentifier := range accountIdentifiers {
		tasks = append(tasks, NewTask(accountIdentifier, startStep))
	}

	orchestrator.logger.Info(
		batchStartedLogMessageConstant,
		zap.String(logFieldRunConstant, runIdentifier),
		zap.Int(logFieldBatchAccountCountConstant, len(tasks)),
		zap.Stringer(logFieldBatchStartStepConstant, startStep),
		zap.Int(logFieldMaxFailuresConstant, orchestrator.maxFailures),
	)

	failureCount := 0
	breakerTripped := false

	for _, task := range tasks {
		if breakerTripped {
			break
		}
		if contextError := executionContext.Err(); contextError != nil {
			orchestrator.logger.Warn(
				batchCancelledLogMessageConstant,
				zap.String(logFieldRunConstant, runIdentifier),
				zap.Error(contextError),
			)
			return orchestrator.summarize(runIdentifier, tasks, breakerTripped), contextError
		}

		if runError := orchestrator.taskRunner.Run(executionContext, task); runError != nil {
			return orchestrator.summarize(runIdentifier, tasks, breakerTripped), runError
		}

		if task.Status != StatusFailed {
			continue
		}

		if recordError := orchestrator.recordFailure(task); recordError != nil {
			return orchestrator.summarize(runIdentifier, tasks, breakerTripped), recordError
		}

		failureCount++
		if failureCount >= orchestrator.maxFailures {
			breakerTripped = true
			orchestrator.logger.Warn(
				breakerTrippedLogMessageConstant,
				zap.String(logFieldRunConstant, runIdentifier),
				zap.Int(logFieldFailureCountConstant, failureCount),
				zap.Int(logFieldMaxFailuresConstant, orchestrator.maxFailures),
			)
		}
	}

	return orchestrator.summarize(runIdentifier, tasks, breakerTripped), nil
}

func (orchestrator *Orchestrator) recordFailure(task *Task) error {
	failureRecord := FailureRecord{
		AccountID:      task.AccountID,
		Step:           task.Failure.Step.String(),
		Classification: string(task.Failure.Classification),
		Error:          task.Failure.Cause.Error(),
		Timestamp:      task.Failure.OccurredAt,
	}
	if recordError := orchestrator.failureSink.Record(failureRecord); recordError != nil {
		return fmt.Errorf(failureRecordErrorTemplateConstant, recordError)
	}
	return nil
}

func (orchestrator *Orchestrator) summarize(runIdentifier string, tasks []*Task, breakerTripped bool) BatchSummary {
	summary := BatchSummary{
		RunID:          runIdentifier,
		BreakerTripped: breakerTripped,
		Outcomes:       make([]TaskOutcome, 0, len(tasks)),
	}

	for _, task := range tasks {
		outcome := TaskOutcome{AccountID: task.AccountID, Status: task.Status, Orphaned: task.Orphaned()}
		switch task.Status {
		case StatusSucceeded:
			summary.SucceededCount++
		case StatusFailed:
			summary.FailedCount++
			outcome.FailedStep = task.Failure.Step
			outcome.Classification = task.Failure.Classification
			outcome.Error = task.Failure.Cause.Error()
		default:
			summary.NotAttemptedCount++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	return summary
}
