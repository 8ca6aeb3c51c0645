package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/event-registration/repositories"
)

var (
	// Not found
	ErrEventNotFound        = errors.New("event not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrInvalidInviteCode    = errors.New("invalid invite code")
	ErrMemberNotFound       = errors.New("participant is not a member of this team")

	// Preconditions
	ErrEventNotOpen          = errors.New("event is not accepting registrations")
	ErrDeadlinePassed        = errors.New("registration deadline has passed")
	ErrCapacityExceeded      = errors.New("event registration limit reached")
	ErrTeamFull              = errors.New("team is full")
	ErrTeamNotFull           = errors.New("team does not have enough members")
	ErrTeamAlreadyComplete   = errors.New("team registration is already complete")
	ErrTeamCancelled         = errors.New("team has been cancelled")
	ErrInvalidTeamSize       = errors.New("invalid team size")
	ErrWrongRegistrationPath = errors.New("event does not accept this kind of registration")
	ErrPaymentRequired       = errors.New("payment approval is required for this event")
	ErrMemberHasSeat         = errors.New("a team member already holds a seat for this event")
	ErrLeaderCannotLeave     = errors.New("the team leader cannot be removed; cancel the team instead")
	ErrRegistrationInactive  = errors.New("registration is not active")
	ErrInvalidTicketToken    = errors.New("invalid ticket token")
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidStatusChange   = errors.New("invalid event status transition")

	// Conflicts surfaced to the caller because no existing entity of the
	// requested type can be returned.
	ErrAlreadyOnTeam     = errors.New("participant already belongs to a team for this event")
	ErrAlreadyRegistered = errors.New("participant already holds a direct registration for this event")

	// Authorization
	ErrNotTeamLeader        = errors.New("only the team leader can perform this action")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Dependencies
	ErrTokenEncoding        = errors.New("ticket token encoding failed")
	ErrInviteCodeGeneration = errors.New("could not generate a unique invite code")
)

// ErrorKind classifies failures for callers that do not care about the exact reason.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindPreconditionFailed
	KindConflict
	KindUnauthorized
	KindDependencyFailure
	KindUnauthenticated
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindDependencyFailure:
		return "dependency_failure"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalid:
		return "invalid"
	}
	return "internal"
}

var errorKinds = map[error]ErrorKind{
	ErrEventNotFound:        KindNotFound,
	ErrTeamNotFound:         KindNotFound,
	ErrRegistrationNotFound: KindNotFound,
	ErrTicketNotFound:       KindNotFound,
	ErrInvalidInviteCode:    KindNotFound,
	ErrMemberNotFound:       KindNotFound,

	ErrEventNotOpen:          KindPreconditionFailed,
	ErrDeadlinePassed:        KindPreconditionFailed,
	ErrCapacityExceeded:      KindPreconditionFailed,
	ErrTeamFull:              KindPreconditionFailed,
	ErrTeamNotFull:           KindPreconditionFailed,
	ErrTeamAlreadyComplete:   KindPreconditionFailed,
	ErrTeamCancelled:         KindPreconditionFailed,
	ErrWrongRegistrationPath: KindPreconditionFailed,
	ErrPaymentRequired:       KindPreconditionFailed,
	ErrMemberHasSeat:         KindPreconditionFailed,
	ErrLeaderCannotLeave:     KindPreconditionFailed,
	ErrRegistrationInactive:  KindPreconditionFailed,
	ErrInvalidStatusChange:   KindPreconditionFailed,

	ErrInvalidTeamSize:    KindInvalid,
	ErrInvalidTicketToken: KindInvalid,
	ErrValidationFailed:   KindInvalid,

	ErrAlreadyOnTeam:     KindConflict,
	ErrAlreadyRegistered: KindConflict,

	ErrNotTeamLeader:      KindUnauthorized,
	ErrForbiddenOperation: KindUnauthorized,

	ErrAuthenticationFailed: KindUnauthenticated,

	ErrTokenEncoding:        KindDependencyFailure,
	ErrInviteCodeGeneration: KindDependencyFailure,
}

// KindOf walks the wrap chain and returns the kind of the first known sentinel.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	for sentinel, kind := range errorKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}

// handleRepositoryError translates store errors into service errors.
func handleRepositoryError(err error, notFound error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrNotFound) && notFound != nil {
		return notFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
