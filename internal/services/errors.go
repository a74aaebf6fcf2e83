package services

import (
	"errors"
	"fmt"

	"github.com/qzplatform/qz-service/internal/validator"
)

// Not found
var (
	ErrTestNotFound     = errors.New("test not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	// ErrQuestionIndexOutOfRange is reported as not found
	ErrQuestionIndexOutOfRange = errors.New("question not found at this index")
)

// Invalid input
var (
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidScheduledTime  = errors.New("invalid date format for scheduledTimeUtc")
	ErrQuestionAlreadyLinked = errors.New("question is already linked to this test")
	ErrQuestionNotLinked     = errors.New("question is not linked to this test")
	ErrGroupNameTaken        = errors.New("group name already exists")
	ErrAttemptNotStarted     = errors.New("test not started")
)

// Invalid state
var (
	ErrAttemptNotActive   = errors.New("test already submitted or not in progress")
	ErrAttemptTimeExpired = errors.New("test time expired, test submitted automatically")
	ErrTestNotAvailable   = errors.New("test is not open for attempts")
	ErrLinkWindowClosed   = errors.New("cannot share a test whose end date has passed")
)

// Access and dependencies
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidLinkToken  = errors.New("invalid or expired link")
	ErrDependencyFailure = errors.New("dependency failure")
)

// PermissionError is returned when a caller acts on a resource it does not own
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

// BusinessRuleError carries a named rule violation. Err, when set, is the
// sentinel the violation corresponds to.
type BusinessRuleError struct {
	Rule    string
	Message string
	Err     error
}

func NewBusinessRuleError(rule, message string, err error) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Err: err}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a single-field validation failure
func NewValidationError(field, message string, value interface{}) validator.ValidationErrors {
	return validator.ValidationErrors{{Field: field, Message: message, Value: value, Rule: "business_logic"}}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrQuestionIndexOutOfRange)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrAttemptNotActive) ||
		errors.Is(err, ErrAttemptTimeExpired) ||
		errors.Is(err, ErrTestNotAvailable) ||
		errors.Is(err, ErrLinkWindowClosed)
}

func IsInvalidInput(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	var ruleErr *BusinessRuleError
	if errors.As(err, &ruleErr) && !IsInvalidState(err) {
		return true
	}
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidScheduledTime) ||
		errors.Is(err, ErrQuestionAlreadyLinked) ||
		errors.Is(err, ErrQuestionNotLinked) ||
		errors.Is(err, ErrGroupNameTaken) ||
		errors.Is(err, ErrAttemptNotStarted)
}
