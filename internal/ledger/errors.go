package ledger

import "errors"

var (
	// ErrNotFound is returned when the item or a party to the transaction
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrItemUnavailable is returned when an item is missing, already
	// redeemed, or not yet approved. Redeemers are not told which.
	ErrItemUnavailable = errors.New("item not found or not available")

	ErrSelfRedemption     = errors.New("cannot redeem your own item")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrAlreadyApproved    = errors.New("item is already approved")

	// ErrConflict is returned when a transaction kept losing write conflicts
	// until its retries ran out. Nothing was applied.
	ErrConflict = errors.New("ledger busy, try again")
)

// Kind groups ledger errors by how a caller should react.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindPrecondition
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	default:
		return "error"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemUnavailable):
		return KindNotFound
	case errors.Is(err, ErrSelfRedemption),
		errors.Is(err, ErrInsufficientPoints),
		errors.Is(err, ErrAlreadyApproved):
		return KindPrecondition
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
