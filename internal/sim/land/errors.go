package land

import "landvote.ai/internal/protocol"

var (
	ErrEmptyLand         = protocol.NewRuleError(protocol.ErrBadRequest, "The Land has no area")
	ErrLandOutOfBounds   = protocol.NewRuleError(protocol.ErrLandOutOfBounds, "The Land is out of the map")
	ErrLandAlreadyOwned  = protocol.NewRuleError(protocol.ErrLandAlreadyOwned, "The Land has already an owner")
	ErrDuplicateClaim    = protocol.NewRuleError(protocol.ErrDuplicateClaim, "There is already a pending claim")
	ErrNotAnOwner        = protocol.NewRuleError(protocol.ErrNotAnOwner, "Only owners can extend the Land")
	ErrExtensionRejected = protocol.NewRuleError(protocol.ErrExtensionRejected, "The Land can't be extended")
	ErrNoSuchClaim       = protocol.NewRuleError(protocol.ErrNoSuchClaim, "There is no pending claim")
	ErrNoSuchBallot      = protocol.NewRuleError(protocol.ErrNoSuchBallot, "Unknown ballot")
)
