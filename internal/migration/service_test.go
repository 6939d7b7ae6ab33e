package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orgkit/orgmover/internal/orgmembership"
)

const testAccountIdentifier = "111122223333"

type recordingTrustEditor struct {
	ensureCalls  []string
	removeCalls  []string
	ensureError  error
	removeError  error
	ensureResult bool
}

func (editor *recordingTrustEditor) EnsureAssumeRoleTrust(_ context.Context, _ string, principalARN string) (bool, error) {
	editor.ensureCalls = append(editor.ensureCalls, principalARN)
	if editor.ensureError != nil {
		return false, editor.ensureError
	}
	return editor.ensureResult, nil
}

func (editor *recordingTrustEditor) RemoveAssumeRoleTrust(_ context.Context, _ string, principalARN string) (bool, error) {
	editor.removeCalls = append(editor.removeCalls, principalARN)
	if editor.removeError != nil {
		return false, editor.removeError
	}
	return true, nil
}

type recordingSourceMembership struct {
	detachCalls []string
	detachError error
}

func (membership *recordingSourceMembership) DetachAccount(_ context.Context, accountIdentifier string) error {
	membership.detachCalls = append(membership.detachCalls, accountIdentifier)
	return membership.detachError
}

type recordingTargetMembership struct {
	inviteCalls         []string
	moveCalls           []string
	inviteError         error
	moveError           error
	handshakeIdentifier string
}

func (membership *recordingTargetMembership) InviteAccount(_ context.Context, accountIdentifier string) (string, error) {
	membership.inviteCalls = append(membership.inviteCalls, accountIdentifier)
	if membership.inviteError != nil {
		return "", membership.inviteError
	}
	return membership.handshakeIdentifier, nil
}

func (membership *recordingTargetMembership) MoveAccountToOrganizationalUnit(_ context.Context, accountIdentifier string, organizationalUnitIdentifier string) error {
	membership.moveCalls = append(membership.moveCalls, accountIdentifier+":"+organizationalUnitIdentifier)
	return membership.moveError
}

type recordingInvitationAcceptor struct {
	acceptedHandshakes []string
	acceptError        error
}

func (acceptor *recordingInvitationAcceptor) AcceptInvitation(_ context.Context, _ string, handshakeIdentifier string) error {
	acceptor.acceptedHandshakes = append(acceptor.acceptedHandshakes, handshakeIdentifier)
	return acceptor.acceptError
}

type serviceFixture struct {
	trustEditor        *recordingTrustEditor
	sourceOrganization *recordingSourceMembership
	targetOrganization *recordingTargetMembership
	invitationAcceptor *recordingInvitationAcceptor
	service            *Service
}

func newServiceFixture(testInstance *testing.T) *serviceFixture {
	testInstance.Helper()

	fixture := &serviceFixture{
		trustEditor:        &recordingTrustEditor{ensureResult: true},
		sourceOrganization: &recordingSourceMembership{},
		targetOrganization: &recordingTargetMembership{handshakeIdentifier: "h-12345"},
		invitationAcceptor: &recordingInvitationAcceptor{},
	}

	service, serviceError := NewService(
		ServiceDependencies{
			TrustEditor:        fixture.trustEditor,
			SourceOrganization: fixture.sourceOrganization,
			TargetOrganization: fixture.targetOrganization,
			InvitationAcceptor: fixture.invitationAcceptor,
		},
		ServiceOptions{
			SourcePrincipalARN:       "arn:aws:iam::999988887777:root",
			TargetPrincipalARN:       "arn:aws:iam::444455556666:root",
			TargetOrganizationalUnit: "ou-root-target",
		},
	)
	require.NoError(testInstance, serviceError)
	fixture.service = service
	return fixture
}

func TestNewServiceRequiresCollaborators(testInstance *testing.T) {
	testInstance.Parallel()

	_, missingEditorError := NewService(ServiceDependencies{
		SourceOrganization: &recordingSourceMembership{},
		TargetOrganization: &recordingTargetMembership{},
		InvitationAcceptor: &recordingInvitationAcceptor{},
	}, ServiceOptions{SourcePrincipalARN: "a", TargetPrincipalARN: "b", TargetOrganizationalUnit: "c"})
	require.Error(testInstance, missingEditorError)

	_, missingOptionError := NewService(ServiceDependencies{
		TrustEditor:        &recordingTrustEditor{},
		SourceOrganization: &recordingSourceMembership{},
		TargetOrganization: &recordingTargetMembership{},
		InvitationAcceptor: &recordingInvitationAcceptor{},
	}, ServiceOptions{SourcePrincipalARN: "a", TargetPrincipalARN: "b"})
	require.Error(testInstance, missingOptionError)
}

func TestServiceRunExecutesAllStepsInOrder(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance)
	task := NewTask(testAccountIdentifier, FirstStep)

	require.NoError(testInstance, fixture.service.Run(context.Background(), task))

	require.Equal(testInstance, StatusSucceeded, task.Status)
	require.Equal(testInstance, FinalStep, task.Step)
	require.Nil(testInstance, task.Failure)
	require.Equal(testInstance, []string{"arn:aws:iam::444455556666:root"}, fixture.trustEditor.ensureCalls)
	require.Equal(testInstance, []string{testAccountIdentifier}, fixture.sourceOrganization.detachCalls)
	require.Equal(testInstance, []string{testAccountIdentifier}, fixture.targetOrganization.inviteCalls)
	require.Equal(testInstance, []string{"h-12345"}, fixture.invitationAcceptor.acceptedHandshakes)
	require.Equal(testInstance, []string{"arn:aws:iam::999988887777:root"}, fixture.trustEditor.removeCalls)
	require.Equal(testInstance, []string{testAccountIdentifier + ":ou-root-target"}, fixture.targetOrganization.moveCalls)
	require.Equal(testInstance, "h-12345", task.HandshakeID)
}

func TestServiceRunStopsAtFailedStepWithoutCompensation(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance)
	fixture.sourceOrganization.detachError = errors.New("remove rejected")
	task := NewTask(testAccountIdentifier, FirstStep)

	require.NoError(testInstance, fixture.service.Run(context.Background(), task))

	require.Equal(testInstance, StatusFailed, task.Status)
	require.NotNil(testInstance, task.Failure)
	require.Equal(testInstance, StepRemoveFromSourceOrg, task.Failure.Step)
	require.False(testInstance, task.Failure.OccurredAt.IsZero())
	require.Empty(testInstance, fixture.targetOrganization.inviteCalls)
	require.Empty(testInstance, fixture.invitationAcceptor.acceptedHandshakes)
	require.Empty(testInstance, fixture.trustEditor.removeCalls)
	require.Empty(testInstance, fixture.targetOrganization.moveCalls)
}

func TestServiceRunDistinguishesFinalizeTrustFailureFromRemoval(testInstance *testing.T) {
	testInstance.Parallel()

	removalFixture := newServiceFixture(testInstance)
	removalFixture.sourceOrganization.detachError = errors.New("boom")
	removalTask := NewTask(testAccountIdentifier, FirstStep)
	require.NoError(testInstance, removalFixture.service.Run(context.Background(), removalTask))

	finalizeFixture := newServiceFixture(testInstance)
	finalizeFixture.trustEditor.removeError = errors.New("boom")
	finalizeTask := NewTask(testAccountIdentifier, FirstStep)
	require.NoError(testInstance, finalizeFixture.service.Run(context.Background(), finalizeTask))

	require.Equal(testInstance, StepRemoveFromSourceOrg, removalTask.Failure.Step)
	require.Equal(testInstance, StepFinalizeTrust, finalizeTask.Failure.Step)
	require.NotEqual(testInstance, removalTask.Failure.Step.String(), finalizeTask.Failure.Step.String())
}

func TestServiceRunResumesFromRequestedStep(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance)
	task := NewTask(testAccountIdentifier, StepAcceptInvitation)

	require.NoError(testInstance, fixture.service.Run(context.Background(), task))

	require.Equal(testInstance, StatusSucceeded, task.Status)
	require.Empty(testInstance, fixture.trustEditor.ensureCalls)
	require.Empty(testInstance, fixture.sourceOrganization.detachCalls)
	require.Empty(testInstance, fixture.targetOrganization.inviteCalls)
	require.Equal(testInstance, []string{""}, fixture.invitationAcceptor.acceptedHandshakes)
	require.Equal(testInstance, []string{"arn:aws:iam::999988887777:root"}, fixture.trustEditor.removeCalls)
	require.Len(testInstance, fixture.targetOrganization.moveCalls, 1)
}

func TestServiceRunPreservesFailureClassification(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance)
	fixture.targetOrganization.inviteError = orgmembership.ClassifiedError{
		Classification: orgmembership.ClassificationStateConflict,
		Code:           "DuplicateHandshakeException",
		Cause:          errors.New("already invited"),
	}
	task := NewTask(testAccountIdentifier, FirstStep)

	require.NoError(testInstance, fixture.service.Run(context.Background(), task))

	require.Equal(testInstance, StatusFailed, task.Status)
	require.Equal(testInstance, StepInviteToTargetOrg, task.Failure.Step)
	require.Equal(testInstance, orgmembership.ClassificationStateConflict, task.Failure.Classification)
}

func TestServiceRunRejectsNonPendingTask(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance)
	task := NewTask(testAccountIdentifier, FirstStep)
	require.NoError(testInstance, fixture.service.Run(context.Background(), task))
	require.Equal(testInstance, StatusSucceeded, task.Status)

	rerunError := fixture.service.Run(context.Background(), task)
	require.Error(testInstance, rerunError)
	require.Equal(testInstance, StatusSucceeded, task.Status)
}

func TestServiceRunRejectsInvalidStartStep(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance)
	task := NewTask(testAccountIdentifier, Step(9))

	require.Error(testInstance, fixture.service.Run(context.Background(), task))
	require.Equal(testInstance, StatusPending, task.Status)
}
