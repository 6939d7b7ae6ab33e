package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orgkit/orgmover/internal/orgmembership"
)

const (
	trustEditorMissingMessageConstant        = "trust policy editor not configured"
	sourceOrganizationMissingMessageConstant = "source organization client not configured"
	targetOrganizationMissingMessageConstant = "target organization client not configured"
	invitationAcceptorMissingMessageConstant = "invitation acceptor not configured"
	sourcePrincipalFieldNameConstant         = "source_principal_arn"
	targetPrincipalFieldNameConstant         = "target_principal_arn"
	targetOUFieldNameConstant                = "target_ou_id"
	requiredValueMessageConstant             = "value is required"
	unknownStepTemplateConstant              = "no executor for step %s"
	stepStartedLogMessageConstant            = "Migration step started"
	stepCompletedLogMessageConstant          = "Migration step completed"
	stepFailedLogMessageConstant             = "Migration step failed"
	taskSucceededLogMessageConstant          = "Account migration succeeded"
	logFieldTaskAccountConstant              = "account_id"
	logFieldStepConstant                     = "step"
	logFieldClassificationConstant           = "classification"
)

// InvalidInputError describes service option validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", inputError.FieldName, inputError.Message)
}

// TrustPolicyEditor mutates an account access role's trust policy.
type TrustPolicyEditor interface {
	EnsureAssumeRoleTrust(executionContext context.Context, accountIdentifier string, principalARN string) (bool, error)
	RemoveAssumeRoleTrust(executionContext context.Context, accountIdentifier string, principalARN string) (bool, error)
}

// SourceMembership performs membership operations against the source
// organization.
type SourceMembership interface {
	DetachAccount(executionContext context.Context, accountIdentifier string) error
}

// TargetMembership performs membership operations against the target
// organization.
type TargetMembership interface {
	InviteAccount(executionContext context.Context, accountIdentifier string) (string, error)
	MoveAccountToOrganizationalUnit(executionContext context.Context, accountIdentifier string, organizationalUnitIdentifier string) error
}

// InvitationAcceptor accepts a pending handshake with the account's own
// credentials.
type InvitationAcceptor interface {
	AcceptInvitation(executionContext context.Context, accountIdentifier string, handshakeIdentifier string) error
}

// ServiceDependencies describes required collaborators for account migration.
type ServiceDependencies struct {
	Logger             *zap.Logger
	TrustEditor        TrustPolicyEditor
	SourceOrganization SourceMembership
	TargetOrganization TargetMembership
	InvitationAcceptor InvitationAcceptor
}

// ServiceOptions configures the migration protocol's fixed parameters.
type ServiceOptions struct {
	SourcePrincipalARN       string
	TargetPrincipalARN       string
	TargetOrganizationalUnit string
}

// Service executes the ordered migration protocol for one account at a time.
type Service struct {
	logger             *zap.Logger
	trustEditor        TrustPolicyEditor
	sourceOrganization SourceMembership
	targetOrganization TargetMembership
	invitationAcceptor InvitationAcceptor
	options            ServiceOptions
	now                func() time.Time
}

var (
	errTrustEditorMissing        = errors.New(trustEditorMissingMessageConstant)
	errSourceOrganizationMissing = errors.New(sourceOrganizationMissingMessageConstant)
	errTargetOrganizationMissing = errors.New(targetOrganizationMissingMessageConstant)
	errInvitationAcceptorMissing = errors.New(invitationAcceptorMissingMessageConstant)
)

// NewService constructs a Service with the provided dependencies and options.
func NewService(dependencies ServiceDependencies, options ServiceOptions) (*Service, error) {
	if dependencies.TrustEditor == nil {
		return nil, errTrustEditorMissing
	}
	if dependencies.SourceOrganization == nil {
		return nil, errSourceOrganizationMissing
	}
	if dependencies.TargetOrganization == nil {
		return nil, errTargetOrganizationMissing
	}
	if dependencies.InvitationAcceptor == nil {
		return nil, errInvitationAcceptorMissing
	}
	if validationError := validateServiceOptions(options); validationError != nil {
		return nil, validationError
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &Service{
		logger:             logger,
		trustEditor:        dependencies.TrustEditor,
		sourceOrganization: dependencies.SourceOrganization,
		targetOrganization: dependencies.TargetOrganization,
		invitationAcceptor: dependencies.InvitationAcceptor,
		options:            options,
		now:                time.Now,
	}

	return service, nil
}

func validateServiceOptions(options ServiceOptions) error {
	if len(strings.TrimSpace(options.SourcePrincipalARN)) == 0 {
		return InvalidInputError{FieldName: sourcePrincipalFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.TargetPrincipalARN)) == 0 {
		return InvalidInputError{FieldName: targetPrincipalFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.TargetOrganizationalUnit)) == 0 {
		return InvalidInputError{FieldName: targetOUFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return nil
}

// Run drives the task from its current step to a terminal status. Step
// failures are recorded on the task; the returned error reports only invalid
// invocations such as running a task that is not pending.
func (service *Service) Run(executionContext context.Context, task *Task) error {
	if !task.Step.Valid() {
		return fmt.Errorf(invalidStepTemplateConstant, int(task.Step), int(FirstStep), int(FinalStep))
	}
	if startError := task.start(); startError != nil {
		return startError
	}

	for currentStep := task.Step; ; currentStep = currentStep.Next() {
		task.Step = currentStep

		service.logger.Info(
			stepStartedLogMessageConstant,
			zap.String(logFieldTaskAccountConstant, task.AccountID),
			zap.Stringer(logFieldStepConstant, currentStep),
		)

		if stepError := service.executeStep(executionContext, task, currentStep); stepError != nil {
			classifiedError := orgmembership.Classify(stepError)
			if failError := task.fail(currentStep, classifiedError, service.now()); failError != nil {
				return failError
			}
			service.logger.Error(
				stepFailedLogMessageConstant,
				zap.String(logFieldTaskAccountConstant, task.AccountID),
				zap.Stringer(logFieldStepConstant, currentStep),
				zap.String(logFieldClassificationConstant, string(task.Failure.Classification)),
				zap.Error(classifiedError),
			)
			return nil
		}

		service.logger.Info(
			stepCompletedLogMessageConstant,
			zap.String(logFieldTaskAccountConstant, task.AccountID),
			zap.Stringer(logFieldStepConstant, currentStep),
		)

		if currentStep == FinalStep {
			break
		}
	}

	if succeedError := task.succeed(); succeedError != nil {
		return succeedError
	}

	service.logger.Info(
		taskSucceededLogMessageConstant,
		zap.String(logFieldTaskAccountConstant, task.AccountID),
	)
	return nil
}

func (service *Service) executeStep(executionContext context.Context, task *Task, currentStep Step) error {
	switch currentStep {
	case StepAddTemporaryTrust:
		_, ensureError := service.trustEditor.EnsureAssumeRoleTrust(executionContext, task.AccountID, service.options.TargetPrincipalARN)
		return ensureError
	case StepRemoveFromSourceOrg:
		return service.sourceOrganization.DetachAccount(executionContext, task.AccountID)
	case StepInviteToTargetOrg:
		handshakeIdentifier, inviteError := service.targetOrganization.InviteAccount(executionContext, task.AccountID)
		if inviteError != nil {
			return inviteError
		}
		task.HandshakeID = handshakeIdentifier
		return nil
	case StepAcceptInvitation:
		return service.invitationAcceptor.AcceptInvitation(executionContext, task.AccountID, task.HandshakeID)
	case StepFinalizeTrust:
		_, removeError := service.trustEditor.RemoveAssumeRoleTrust(executionContext, task.AccountID, service.options.SourcePrincipalARN)
		return removeError
	case StepMoveToTargetOU:
		return service.targetOrganization.MoveAccountToOrganizationalUnit(executionContext, task.AccountID, service.options.TargetOrganizationalUnit)
	default:
		return fmt.Errorf(unknownStepTemplateConstant, currentStep)
	}
}
