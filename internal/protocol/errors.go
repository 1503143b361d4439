package protocol

import "errors"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Runtime state.
	ErrBusy     = "E_BUSY"
	ErrInternal = "E_INTERNAL"

	// The command reached the world but its response did not come back in
	// time. It may have been applied; clients must re-read state before
	// retrying.
	ErrOutcomeUnknown = "E_OUTCOME_UNKNOWN"

	// Request validation.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoSuchBallot = "E_NO_SUCH_BALLOT"

	// Ballot rules.
	ErrUnauthorized    = "E_UNAUTHORIZED"
	ErrAlreadyVoted    = "E_ALREADY_VOTED"
	ErrNoRightToVote   = "E_NO_RIGHT_TO_VOTE"
	ErrInvalidProposal = "E_INVALID_PROPOSAL"

	// Land rules.
	ErrLandOutOfBounds    = "E_LAND_OUT_OF_BOUNDS"
	ErrLandAlreadyOwned   = "E_LAND_ALREADY_OWNED"
	ErrDuplicateClaim     = "E_DUPLICATE_CLAIM"
	ErrNotAnOwner         = "E_NOT_AN_OWNER"
	ErrExtensionRejected  = "E_EXTENSION_REJECTED"
	ErrNoSuchClaim        = "E_NO_SUCH_CLAIM"
	ErrInvariantViolation = "E_INVARIANT_VIOLATION"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrBusy:               {},
	ErrInternal:           {},
	ErrOutcomeUnknown:     {},
	ErrBadRequest:         {},
	ErrNoSuchBallot:       {},
	ErrUnauthorized:       {},
	ErrAlreadyVoted:       {},
	ErrNoRightToVote:      {},
	ErrInvalidProposal:    {},
	ErrLandOutOfBounds:    {},
	ErrLandAlreadyOwned:   {},
	ErrDuplicateClaim:     {},
	ErrNotAnOwner:         {},
	ErrExtensionRejected:  {},
	ErrNoSuchClaim:        {},
	ErrInvariantViolation: {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// RuleError is a rejection with a stable wire code. Rule packages declare
// their rejections as package-level *RuleError values so callers can match
// them with errors.Is.
type RuleError struct {
	Code    string
	Message string
}

func NewRuleError(code, message string) *RuleError {
	return &RuleError{Code: code, Message: message}
}

func (e *RuleError) Error() string { return e.Message }

// CodeOf maps an error to its wire code. Errors that carry no code are
// reported as E_INTERNAL.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrInternal
}
