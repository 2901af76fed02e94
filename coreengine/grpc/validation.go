package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
	"github.com/jeeves-cluster-organization/selene/coreengine/kernel"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// validateRequired checks that a field is non-empty.
func validateRequired(field, fieldName string) error {
	if field == "" {
		return InvalidArgument(fieldName)
	}
	return nil
}

// =============================================================================
// ERROR BUILDERS
// =============================================================================
//
// Clients rely on the code and message shape of these builders.

// InvalidArgument returns an InvalidArgument error for a missing field.
func InvalidArgument(fieldName string) error {
	return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
}

// InvalidInput returns an InvalidArgument error for a field that is present
// but unusable.
func InvalidInput(fieldName string, cause error) error {
	return status.Errorf(codes.InvalidArgument, "invalid %s: %v", fieldName, cause)
}

// NotFound returns a NotFound error.
func NotFound(resourceType, id string) error {
	return status.Errorf(codes.NotFound, "%s not found: %s", resourceType, id)
}

// Internal wraps an unexpected failure.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}

// =============================================================================
// REFUSALS
// =============================================================================

// RefusalCode maps a reason class onto the status code a refusal is
// reported with.
func RefusalCode(class contract.ReasonClass) codes.Code {
	switch class {
	case contract.ReasonClassSchemaInvalid:
		return codes.InvalidArgument
	case contract.ReasonClassBudgetExceeded:
		return codes.ResourceExhausted
	case contract.ReasonClassValidationFailed:
		return codes.FailedPrecondition
	case contract.ReasonClassPolicy:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// Refused returns the status error of a refused turn. The message carries
// the capability and reason code so clients can tell refusals apart.
func Refused(r *contract.Refuse) error {
	return status.Errorf(RefusalCode(r.ReasonCode.Class()),
		"%s refused (%s): %s", r.CapabilityID, r.ReasonCode, r.Message)
}

// TurnError maps a kernel error onto a status error.
func TurnError(domain string, err error) error {
	var inputErr *kernel.InputError
	switch {
	case errors.Is(err, kernel.ErrUnknownDomain):
		return NotFound("domain", domain)
	case errors.As(err, &inputErr):
		return InvalidInput("input", inputErr.Err)
	case errors.Is(err, kernel.ErrIdempotencyKeyReused):
		return status.Errorf(codes.AlreadyExists, "%v", err)
	default:
		return Internal("run turn", err)
	}
}
