package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Member errors
	CodeNoMember      Code = "NO_MEMBER"
	CodeIDAlreadyUsed Code = "ID_ALREADY_USED"
	CodeInvalidID     Code = "INVALID_ID"

	// Credential errors
	CodeFailedAuth             Code = "FAILED_AUTH"
	CodeNoPasswordCredential   Code = "NO_PASSWORD_CREDENTIAL"
	CodeNoWebAuthnCredential   Code = "NO_WEBAUTHN_CREDENTIAL"
	CodeWebAuthnAlreadyEnabled Code = "WEBAUTHN_ALREADY_ENABLED"
	CodeWrongRelyingPartyID    Code = "WRONG_RELYING_PARTY_ID"
	CodeDeviceNameInUse        Code = "DEVICE_NAME_IN_USE"

	// Ceremony errors
	CodeNoMatchingSession Code = "NO_MATCHING_SESSION"

	// Invitation errors
	CodeNoSuchInvitation   Code = "NO_SUCH_INVITATION"
	CodeInvitationExpired  Code = "INVITATION_EXPIRED"
	CodeRegistrationClosed Code = "REGISTRATION_CLOSED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes so the routing layer can
// translate failures deterministically.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidID,
		CodeWrongRelyingPartyID:
		return codes.InvalidArgument

	// Unauthenticated - credential verification failures
	case CodeFailedAuth:
		return codes.Unauthenticated

	// FailedPrecondition - state doesn't allow the operation
	case CodeNoPasswordCredential,
		CodeNoWebAuthnCredential,
		CodeWebAuthnAlreadyEnabled,
		CodeInvitationExpired,
		CodeRegistrationClosed:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNoMember,
		CodeNoMatchingSession,
		CodeNoSuchInvitation,
		CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeIDAlreadyUsed,
		CodeDeviceNameInUse:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
