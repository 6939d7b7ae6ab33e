package migration

import "fmt"

// Step identifies one position in the ordered migration protocol.
type Step int

// Migration steps in required execution order.
const (
	StepAddTemporaryTrust Step = iota + 1
	StepRemoveFromSourceOrg
	StepInviteToTargetOrg
	StepAcceptInvitation
	StepFinalizeTrust
	StepMoveToTargetOU
)

// FirstStep and FinalStep bound the protocol.
const (
	FirstStep = StepAddTemporaryTrust
	FinalStep = StepMoveToTargetOU
)

const invalidStepTemplateConstant = "invalid migration step %d: expected %d through %d"

var stepNames = map[Step]string{
	StepAddTemporaryTrust:   "add_temporary_trust",
	StepRemoveFromSourceOrg: "remove_from_source_org",
	StepInviteToTargetOrg:   "invite_to_target_org",
	StepAcceptInvitation:    "accept_invitation",
	StepFinalizeTrust:       "finalize_trust",
	StepMoveToTargetOU:      "move_to_target_ou",
}

// String returns the step's stable name used in logs and failure records.
func (step Step) String() string {
	stepName, known := stepNames[step]
	if !known {
		return fmt.Sprintf("step_%d", int(step))
	}
	return stepName
}

// Valid reports whether the step lies within the protocol.
func (step Step) Valid() bool {
	return step >= FirstStep && step <= FinalStep
}

// Next returns the following step.
func (step Step) Next() Step {
	return step + 1
}

// ParseStep converts a numeric step position into a Step.
func ParseStep(stepNumber int) (Step, error) {
	candidateStep := Step(stepNumber)
	if !candidateStep.Valid() {
		return 0, fmt.Errorf(invalidStepTemplateConstant, stepNumber, int(FirstStep), int(FinalStep))
	}
	return candidateStep, nil
}

// Status describes a task's position in its lifecycle.
type Status string

// Task lifecycle statuses. Succeeded and Failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transition.
func (status Status) Terminal() bool {
	return status == StatusSucceeded || status == StatusFailed
}
