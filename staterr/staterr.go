// Package staterr defines the wire-facing error taxonomy shared by every
// state-transition function. Validation errors fail the enclosing block
// outright; protocol errors are recorded against the offending item and
// processing continues; runtime errors surface without mutating state.
package staterr

import "fmt"

// Kind classifies how a caller should react to an error.
type Kind int

const (
	// KindValidation fails the entire block: no partial post-state.
	KindValidation Kind = iota
	// KindProtocol is recorded per-item (e.g. against psi) and processing
	// of the remaining extrinsic continues.
	KindProtocol
	// KindRuntime signals an external dependency failure (oracle call,
	// ring-VRF service) with no state mutation at all.
	KindRuntime
)

// Error is a coded STF error carrying its wire string and classification.
type Error struct {
	code string
	kind Kind
}

func (e *Error) Error() string { return e.code }

// Code returns the wire-facing error string (spec §7).
func (e *Error) Code() string { return e.code }

// Kind returns how this error should be handled by its caller.
func (e *Error) Kind() Kind { return e.kind }

func newErr(code string, kind Kind) *Error {
	return &Error{code: code, kind: kind}
}

// Safrole (§4.1) error codes.
var (
	ErrBadSlot                   = newErr("bad_slot", KindValidation)
	ErrUnexpectedTicket          = newErr("unexpected_ticket", KindValidation)
	ErrBadTicketAttempt          = newErr("bad_ticket_attempt", KindValidation)
	ErrBadTicketProof            = newErr("bad_ticket_proof", KindValidation)
	ErrBadTicketOrder            = newErr("bad_ticket_order", KindValidation)
	ErrDuplicateTicket           = newErr("duplicate_ticket", KindValidation)
	ErrRustServerBatchVerifyFail = newErr("rust_server_batch_verify_failed", KindRuntime)
)

// Guarantees (§4.2) error codes.
var (
	ErrAnchorNotRecent                  = newErr("anchor_not_recent", KindProtocol)
	ErrBadServiceID                     = newErr("bad_service_id", KindValidation)
	ErrBadCodeHash                      = newErr("bad_code_hash", KindValidation)
	ErrWrongAssignment                  = newErr("wrong_assignment", KindValidation)
	ErrFutureReportSlot                 = newErr("future_report_slot", KindValidation)
	ErrReportBeforeLastRotation         = newErr("report_before_last_rotation", KindValidation)
	ErrTooManyDependencies              = newErr("too_many_dependencies", KindValidation)
	ErrDependencyMissing                = newErr("dependency_missing", KindValidation)
	ErrTooHighWorkReportGas             = newErr("too_high_work_report_gas", KindValidation)
	ErrServiceItemGasTooLow             = newErr("service_item_gas_too_low", KindValidation)
	ErrDuplicatePackageInRecentHistory  = newErr("duplicate_package_in_recent_history", KindValidation)
	ErrTimedOut                         = newErr("timed_out", KindProtocol)
	ErrAccumulationFailed               = newErr("accumulation_failed", KindProtocol)
)

// Assurances (§4.3) error codes.
var (
	ErrBadAttestationParent    = newErr("bad_attestation_parent", KindValidation)
	ErrBadValidatorIndex       = newErr("bad_validator_index", KindValidation)
	ErrNotSortedOrUniqueAssurers = newErr("not_sorted_or_unique_assurers", KindValidation)
	ErrBadSignature            = newErr("bad_signature", KindValidation)
	ErrCoreNotEngaged          = newErr("core_not_engaged", KindValidation)
)

// Preimages (§4.4) error codes.
var (
	ErrPreimagesNotSortedUnique = newErr("preimages_not_sorted_unique", KindValidation)
	ErrPreimageUnneeded         = newErr("preimage_unneeded", KindValidation)
)

// Disputes (§4.6) error codes.
var (
	ErrBadVoteSplit     = newErr("bad_vote_split", KindValidation)
	ErrAlreadyJudged    = newErr("already_judged", KindValidation)
	ErrOffenderNotFound = newErr("offender_not_found", KindValidation)
)

// Wrap annotates an existing coded error with extra context while
// preserving its code and kind for callers that type-assert on *Error.
func Wrap(err *Error, context string) error {
	return fmt.Errorf("%s: %w", context, err)
}

// Is reports whether err carries the given wire code.
func Is(err error, code *Error) bool {
	se, ok := err.(*Error)
	if !ok {
		return false
	}
	return se.code == code.code
}
