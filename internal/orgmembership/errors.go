package orgmembership

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Classification buckets an organization membership failure.
type Classification string

// Supported failure classifications.
const (
	ClassificationTransient     Classification = "transient"
	ClassificationPermission    Classification = "permission"
	ClassificationStateConflict Classification = "state_conflict"
	ClassificationNotFound      Classification = "not_found"
	ClassificationUnknown       Classification = "unknown"
)

const classifiedErrorTemplateConstant = "%s (%s): %v"

var permissionErrorCodes = map[string]struct{}{
	"AccessDeniedException":              {},
	"AccessDeniedForDependencyException": {},
}

var transientErrorCodes = map[string]struct{}{
	"TooManyRequestsException": {},
	"ThrottlingException":      {},
	"ServiceException":         {},
}

var notFoundErrorCodes = map[string]struct{}{
	"AccountNotFoundException":            {},
	"HandshakeNotFoundException":          {},
	"SourceParentNotFoundException":       {},
	"DestinationParentNotFoundException":  {},
	"OrganizationalUnitNotFoundException": {},
	"TargetNotFoundException":             {},
	"ParentNotFoundException":             {},
	"RootNotFoundException":               {},
	"NoSuchEntity":                        {},
}

var stateConflictErrorCodes = map[string]struct{}{
	"HandshakeConstraintViolationException": {},
	"InvalidHandshakeTransitionException":   {},
	"HandshakeAlreadyInStateException":      {},
	"DuplicateHandshakeException":           {},
	"DuplicateAccountException":             {},
	"ConstraintViolationException":          {},
	"ConcurrentModificationException":       {},
	"AccountAlreadyClosedException":         {},
	"AccountAlreadyRegisteredException":     {},
	"FinalizingOrganizationException":       {},
}

// ClassifiedError attaches a Classification and AWS error code to a wrapped
// API failure.
type ClassifiedError struct {
	Classification Classification
	Code           string
	Cause          error
}

// Error renders the classification, code, and underlying failure.
func (classifiedError ClassifiedError) Error() string {
	return fmt.Sprintf(classifiedErrorTemplateConstant, classifiedError.Classification, classifiedError.Code, classifiedError.Cause)
}

// Unwrap exposes the underlying API failure.
func (classifiedError ClassifiedError) Unwrap() error {
	return classifiedError.Cause
}

// Classify wraps an API failure in a ClassifiedError. Already-classified
// errors pass through unchanged.
func Classify(operationError error) error {
	if operationError == nil {
		return nil
	}

	var alreadyClassified ClassifiedError
	if errors.As(operationError, &alreadyClassified) {
		return operationError
	}

	classification := ClassificationUnknown
	errorCode := ""

	var apiError smithy.APIError
	if errors.As(operationError, &apiError) {
		errorCode = apiError.ErrorCode()
		classification = classifyErrorCode(errorCode)
		if classification == ClassificationUnknown && apiError.ErrorFault() == smithy.FaultServer {
			classification = ClassificationTransient
		}
	}

	return ClassifiedError{Classification: classification, Code: errorCode, Cause: operationError}
}

// ClassificationOf extracts the classification from an error chain, returning
// ClassificationUnknown when the error was never classified.
func ClassificationOf(operationError error) Classification {
	var classifiedError ClassifiedError
	if errors.As(operationError, &classifiedError) {
		return classifiedError.Classification
	}
	return ClassificationUnknown
}

func classifyErrorCode(errorCode string) Classification {
	if _, isPermission := permissionErrorCodes[errorCode]; isPermission {
		return ClassificationPermission
	}
	if _, isTransient := transientErrorCodes[errorCode]; isTransient {
		return ClassificationTransient
	}
	if _, isNotFound := notFoundErrorCodes[errorCode]; isNotFound {
		return ClassificationNotFound
	}
	if _, isStateConflict := stateConflictErrorCodes[errorCode]; isStateConflict {
		return ClassificationStateConflict
	}
	return ClassificationUnknown
}
