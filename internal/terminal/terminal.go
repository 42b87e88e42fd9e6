// Package terminal is the order lifecycle of one workstation: it owns the
// single working order, enforces which actions are legal in which state,
// and orchestrates the repository and the table tag store.
//
// All working-order state lives behind one mutex. Repository calls run
// outside it, and each action slot admits one in-flight call per working
// order: a repeated submission joins the running call instead of issuing a
// second request.
package terminal

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/discount"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/repository"
	"golang.org/x/sync/singleflight"
)

// TagStore keeps the table annotation of an order. Satisfied by *tabletag.Store.
type TagStore interface {
	Set(ctx context.Context, orderID uuid.UUID, value string) error
	Get(ctx context.Context, orderID uuid.UUID) (string, bool, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
}

// Staff identifies who is placing orders and for which branch.
type Staff struct {
	UserID   uuid.UUID
	BranchID uuid.UUID
}

// StaffFunc resolves the current staff, or fails when nobody is signed in.
type StaffFunc func() (Staff, error)

// Terminal is safe for concurrent use.
type Terminal struct {
	repo  repository.Orders
	tags  TagStore
	staff StaffFunc

	flight singleflight.Group

	mu sync.Mutex
	w  working
	// generation changes whenever the working order is replaced, so results
	// of calls started for an older order are discarded.
	generation uint64
	inflight   map[string]int
}

// working is the working copy of the order. revision counts changes to
// everything Update pushes; pushed is the revision the repository last saw.
type working struct {
	state     State
	orderID   uuid.UUID
	channel   enum.Channel
	payment   enum.PaymentMethod
	reference string
	table     string
	lines     cart.Set

	headcount int
	discounts []discount.Row
	nextRowID int
	tendered  string

	revision uint64
	pushed   uint64
	synced   bool
}

func New(repo repository.Orders, tags TagStore, staff StaffFunc) *Terminal {
	t := &Terminal{repo: repo, tags: tags, staff: staff, inflight: make(map[string]int)}
	t.w = newWorking(enum.ChannelDineIn)
	return t
}

func newWorking(ch enum.Channel) working {
	return working{state: StateDraft, channel: ch, payment: enum.PaymentCash, nextRowID: 1}
}

// NewDraft drops the working order and starts an empty draft.
func (t *Terminal) NewDraft(ch enum.Channel) error {
	if !ch.Valid() {
		return enum.ErrUnknownChannel
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.w = newWorking(ch)
	return nil
}

func (t *Terminal) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.state
}

// OrderID is uuid.Nil while the order is a draft.
func (t *Terminal) OrderID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.orderID
}

// SetChannel changes the channel of a draft. Leaving a channel that takes a
// table clears the table.
func (t *Terminal) SetChannel(ch enum.Channel) error {
	if !ch.Valid() {
		return enum.ErrUnknownChannel
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state != StateDraft {
		return transitionError("set channel", t.w.state)
	}
	t.w.channel = ch
	if !ch.RequiresTable() {
		t.w.table = ""
	}
	t.w.revision++
	return nil
}

func (t *Terminal) SetPaymentMethod(m enum.PaymentMethod) error {
	if _, err := enum.ParsePaymentMethod(string(m)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state.Final() {
		return transitionError("set payment method", t.w.state)
	}
	if t.w.payment != m {
		t.w.payment = m
		t.w.revision++
	}
	return nil
}

// SetReference sets the order slip number of a draft, as typed.
func (t *Terminal) SetReference(ref string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state != StateDraft {
		return transitionError("set reference", t.w.state)
	}
	t.w.reference = strings.TrimSpace(ref)
	return nil
}

// SetTable sets the table annotation. It is held in memory until the order
// has an identity and is written to the tag store on Place or Update.
func (t *Terminal) SetTable(table string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.w.state {
	case StateDraft, StatePlaced, StateEditing:
	default:
		return transitionError("set table", t.w.state)
	}
	if !t.w.channel.RequiresTable() {
		return ErrTableNotApplicable
	}
	t.w.table = strings.TrimSpace(table)
	t.w.revision++
	return nil
}

func (t *Terminal) composable(action string) error {
	switch t.w.state {
	case StateDraft, StatePlaced, StateEditing:
		return nil
	}
	return transitionError(action, t.w.state)
}

// AddItem adds qty of item, merging into an existing line for the same item.
func (t *Terminal) AddItem(item cart.MenuItem, qty int) (cart.Line, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.composable("add item"); err != nil {
		return cart.Line{}, err
	}
	if qty <= 0 {
		qty = 1
	}
	l := t.w.lines.Add(item, qty)
	t.w.revision++
	return l, nil
}

// AdjustQuantity applies delta; a line reaching zero is removed.
func (t *Terminal) AdjustQuantity(lineID uuid.UUID, delta int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.composable("adjust quantity"); err != nil {
		return err
	}
	if _, ok := t.w.lines.Get(lineID); !ok {
		return ErrUnknownLine
	}
	t.w.lines.AdjustQuantity(lineID, delta)
	t.w.revision++
	return nil
}

func (t *Terminal) RemoveItem(lineID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.composable("remove item"); err != nil {
		return err
	}
	if _, ok := t.w.lines.Get(lineID); !ok {
		return ErrUnknownLine
	}
	t.w.lines.Remove(lineID)
	t.w.revision++
	return nil
}

// ClearLines empties a draft.
func (t *Terminal) ClearLines() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state != StateDraft {
		return transitionError("clear lines", t.w.state)
	}
	t.w.lines.Clear()
	t.w.revision++
	return nil
}

// ToggleServed flips a line's served flag. Fulfillment is not tracked before
// placement, so on a draft it does nothing.
func (t *Terminal) ToggleServed(lineID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.w.state {
	case StateDraft:
		return nil
	case StatePlaced, StateEditing:
	default:
		return transitionError("toggle served", t.w.state)
	}
	if _, ok := t.w.lines.Get(lineID); !ok {
		return ErrUnknownLine
	}
	t.w.lines.ToggleServed(lineID)
	t.w.revision++
	return nil
}

func (t *Terminal) SetHeadcount(n int) error {
	if n < 0 {
		return ErrInvalidHeadcount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state.Final() {
		return transitionError("set headcount", t.w.state)
	}
	t.w.headcount = n
	return nil
}

// AddDiscount appends a discount row and returns its id. Count and rate are
// kept as typed.
func (t *Terminal) AddDiscount(kind enum.DiscountKind, count, customRate string) (int, error) {
	if _, err := enum.ParseDiscountKind(string(kind)); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state.Final() {
		return 0, transitionError("add discount", t.w.state)
	}
	if t.w.headcount <= 0 {
		return 0, ErrHeadcountRequired
	}
	row := discount.Row{ID: t.w.nextRowID, Kind: kind, Count: count, CustomRate: customRate}
	t.w.nextRowID++
	t.w.discounts = append(t.w.discounts, row)
	return row.ID, nil
}

func (t *Terminal) UpdateDiscount(id int, kind enum.DiscountKind, count, customRate string) error {
	if _, err := enum.ParseDiscountKind(string(kind)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state.Final() {
		return transitionError("update discount", t.w.state)
	}
	for i := range t.w.discounts {
		if t.w.discounts[i].ID == id {
			t.w.discounts[i] = discount.Row{ID: id, Kind: kind, Count: count, CustomRate: customRate}
			return nil
		}
	}
	return ErrUnknownDiscount
}

func (t *Terminal) RemoveDiscount(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state.Final() {
		return transitionError("remove discount", t.w.state)
	}
	for i := range t.w.discounts {
		if t.w.discounts[i].ID == id {
			t.w.discounts = append(t.w.discounts[:i], t.w.discounts[i+1:]...)
			return nil
		}
	}
	return ErrUnknownDiscount
}

// SetTender records the cash received, as typed.
func (t *Terminal) SetTender(received string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state.Final() {
		return transitionError("set tender", t.w.state)
	}
	t.w.tendered = strings.TrimSpace(received)
	return nil
}

// EnterCheckout requires at least one line and, when the channel tracks
// fulfillment, every line served.
func (t *Terminal) EnterCheckout() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state != StatePlaced && t.w.state != StateEditing {
		return transitionError("enter checkout", t.w.state)
	}
	if err := t.w.checkoutBlocker(); err != nil {
		return err
	}
	t.w.state = StateCheckout
	return nil
}

func (t *Terminal) LeaveCheckout() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w.state != StateCheckout {
		return transitionError("leave checkout", t.w.state)
	}
	t.w.state = StateEditing
	return nil
}

func (w *working) checkoutBlocker() error {
	if w.lines.Len() == 0 {
		return ErrEmptyOrder
	}
	if w.channel.RequiresFulfillment() && !w.lines.AllServed() {
		return ErrNotAllServed
	}
	return nil
}
