package terminal

import (
	"errors"
	"fmt"

	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/settlement"
)

// State is the lifecycle position of the working order.
type State int

const (
	StateDraft State = iota
	StatePlaced
	StateEditing
	StateCheckout
	StatePaid
	StateCancelled
)

var stateNames = [...]string{"draft", "placed", "editing", "checkout", "paid", "cancelled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Final reports whether the order has been settled or cancelled.
func (s State) Final() bool { return s == StatePaid || s == StateCancelled }

// persisted reports whether the order has a repository identity.
func (s State) persisted() bool {
	return s == StatePlaced || s == StateEditing || s == StateCheckout
}

// Validation errors: the action is refused before any repository contact.
var (
	ErrEmptyOrder         = errors.New("order has no items")
	ErrReferenceRequired  = errors.New("order slip number is required")
	ErrTableRequired      = errors.New("table number is required for dine-in orders")
	ErrTableNotApplicable = errors.New("channel does not take a table number")
	ErrNotAllServed       = errors.New("all items must be served before checkout")
	ErrHeadcountRequired  = errors.New("set the number of diners before adding discounts")
	ErrInvalidHeadcount   = errors.New("number of diners cannot be negative")
	ErrUnknownLine        = errors.New("no such line")
	ErrUnknownDiscount    = errors.New("no such discount row")
	ErrNoStaff            = errors.New("no signed-in staff or selected branch")
	ErrOrderClosed        = errors.New("order is already paid or cancelled")
)

// ErrInvalidTransition is wrapped by every action refused in the current state.
var ErrInvalidTransition = errors.New("not allowed in current state")

// ErrSuperseded is returned by an action whose working order was replaced
// before it reached the repository.
var ErrSuperseded = fmt.Errorf("working order was replaced: %w", ErrInvalidTransition)

func transitionError(action string, from State) error {
	return fmt.Errorf("%s from %s: %w", action, from, ErrInvalidTransition)
}

// RepositoryError is a failed repository call. Local state was not advanced
// and the action can be retried.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *RepositoryError) Unwrap() error { return e.Err }

// IsValidation reports whether err was raised by local validation.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyOrder, ErrReferenceRequired, ErrTableRequired, ErrTableNotApplicable,
		ErrNotAllServed, ErrHeadcountRequired, ErrInvalidHeadcount, ErrNoStaff,
		settlement.ErrInsufficientTender, settlement.ErrDiscountOverHeadcount,
		enum.ErrUnknownChannel, enum.ErrUnknownPaymentMethod, enum.ErrUnknownDiscountKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
