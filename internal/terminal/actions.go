package terminal

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/discount"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/kiwari-pos/terminal/internal/settlement"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Action slots. A second submission on a busy slot for the same working
// order joins the running call; once the order is replaced the slot is free.
const (
	slotPlace  = "place"
	slotLoad   = "load"
	slotUpdate = "update"
	slotPay    = "pay"
	slotCancel = "cancel"
)

func (t *Terminal) run(slot string, fn func(gen uint64) (any, error)) (any, error) {
	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()

	key := slot + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := t.flight.Do(key, func() (any, error) {
		t.mu.Lock()
		t.inflight[slot]++
		t.mu.Unlock()
		defer func() {
			t.mu.Lock()
			if t.inflight[slot]--; t.inflight[slot] <= 0 {
				delete(t.inflight, slot)
			}
			t.mu.Unlock()
		}()
		return fn(gen)
	})
	return v, err
}

// Place submits the draft. On success the order has an identity, the state
// is Placed and, for channels that take one, the table is tagged.
func (t *Terminal) Place(ctx context.Context) (uuid.UUID, error) {
	v, err := t.run(slotPlace, func(gen uint64) (any, error) {
		t.mu.Lock()
		if t.generation != gen {
			t.mu.Unlock()
			return uuid.Nil, ErrSuperseded
		}
		if t.w.state != StateDraft {
			defer t.mu.Unlock()
			return uuid.Nil, transitionError("place", t.w.state)
		}
		req, err := t.w.placeRequest()
		if err != nil {
			t.mu.Unlock()
			return uuid.Nil, err
		}
		rev, ch, table := t.w.revision, t.w.channel, t.w.table
		t.mu.Unlock()

		staff, err := t.currentStaff()
		if err != nil {
			return uuid.Nil, err
		}
		req.UserID, req.BranchID = staff.UserID, staff.BranchID

		order, err := t.repo.CreateOrder(ctx, req)
		if err != nil {
			log.WithError(err).Error("place order")
			return uuid.Nil, &RepositoryError{Op: "place order", Err: err}
		}

		t.mu.Lock()
		if t.generation == gen {
			t.w.state = StatePlaced
			t.w.orderID = order.ID
			t.w.lines.AssignOrderItemIDs(orderItemIDs(order))
			t.w.pushed, t.w.synced = rev, true
		} else {
			log.WithField("order_id", order.ID).Warn("working order replaced while placing; order stays on the board")
		}
		t.mu.Unlock()

		if ch.RequiresTable() {
			t.writeTag(ctx, order.ID, table)
		}
		log.WithFields(log.Fields{"order_id": order.ID, "channel": ch}).Info("order placed")
		return order.ID, nil
	})
	id, _ := v.(uuid.UUID)
	return id, err
}

func (w *working) placeRequest() (repository.NewOrder, error) {
	if w.lines.Len() == 0 {
		return repository.NewOrder{}, ErrEmptyOrder
	}
	osNum, err := strconv.Atoi(w.reference)
	if err != nil || osNum <= 0 {
		return repository.NewOrder{}, ErrReferenceRequired
	}
	if w.channel.RequiresTable() && w.table == "" {
		return repository.NewOrder{}, ErrTableRequired
	}
	items := make([]repository.LineInput, 0, w.lines.Len())
	for _, l := range w.lines.Lines() {
		items = append(items, repository.LineInput{MenuItemID: l.MenuItemID, Quantity: l.Quantity})
	}
	return repository.NewOrder{
		Channel:       w.channel,
		PaymentMethod: w.payment,
		OSNum:         &osNum,
		Items:         items,
	}, nil
}

func (t *Terminal) currentStaff() (Staff, error) {
	if t.staff == nil {
		return Staff{}, ErrNoStaff
	}
	s, err := t.staff()
	if err != nil || s.UserID == uuid.Nil || s.BranchID == uuid.Nil {
		return Staff{}, ErrNoStaff
	}
	return s, nil
}

// Load replaces the working order with a persisted open order for editing,
// restoring its table tag.
func (t *Terminal) Load(ctx context.Context, id uuid.UUID) error {
	_, err := t.run(slotLoad+":"+id.String(), func(uint64) (any, error) {
		order, err := t.repo.GetOrder(ctx, id)
		if err != nil {
			log.WithError(err).WithField("order_id", id).Error("load order")
			return nil, &RepositoryError{Op: "load order", Err: err}
		}
		if order.State != enum.OrderStateOpen {
			return nil, ErrOrderClosed
		}

		var table string
		if order.Channel.RequiresTable() && t.tags != nil {
			v, ok, err := t.tags.Get(ctx, id)
			if err != nil {
				log.WithError(err).WithField("order_id", id).Warn("read table tag")
			} else if ok {
				table = v
			}
		}

		ch := order.Channel
		if !ch.Valid() {
			ch = enum.ChannelTakeOut
		}
		w := newWorking(ch)
		w.state = StateEditing
		w.orderID = order.ID
		if _, err := enum.ParsePaymentMethod(string(order.PaymentMethod)); err == nil {
			w.payment = order.PaymentMethod
		}
		if order.OSNum != nil {
			w.reference = strconv.Itoa(*order.OSNum)
		}
		w.table = table
		w.lines.Restore(cartLines(order.Items))
		w.synced = true

		t.mu.Lock()
		t.generation++
		t.w = w
		t.mu.Unlock()
		return nil, nil
	})
	return err
}

// Update pushes payment method and lines, with server line ids and served
// flags, and rewrites the table tag.
func (t *Terminal) Update(ctx context.Context) error {
	_, err := t.run(slotUpdate, func(gen uint64) (any, error) {
		return nil, t.push(ctx, gen)
	})
	return err
}

// push sends the working copy of generation gen to the repository.
func (t *Terminal) push(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		return ErrSuperseded
	}
	if !t.w.state.persisted() {
		defer t.mu.Unlock()
		return transitionError("update", t.w.state)
	}
	if t.w.lines.Len() == 0 {
		t.mu.Unlock()
		return ErrEmptyOrder
	}
	id, rev := t.w.orderID, t.w.revision
	ch, table := t.w.channel, t.w.table
	req := repository.OrderUpdate{PaymentMethod: t.w.payment}
	for _, l := range t.w.lines.Lines() {
		served := l.Served
		req.Items = append(req.Items, repository.LineInput{
			MenuItemID:  l.MenuItemID,
			Quantity:    l.Quantity,
			OrderItemID: l.OrderItemID,
			Served:      &served,
		})
	}
	t.mu.Unlock()

	order, err := t.repo.UpdateOrder(ctx, id, req)
	if err != nil {
		log.WithError(err).WithField("order_id", id).Error("update order")
		return &RepositoryError{Op: "update order", Err: err}
	}

	t.mu.Lock()
	if t.generation == gen {
		t.w.lines.AssignOrderItemIDs(orderItemIDs(order))
		t.w.pushed, t.w.synced = rev, true
	}
	t.mu.Unlock()

	if ch.RequiresTable() {
		t.writeTag(ctx, id, table)
	}
	return nil
}

// ConfirmPayment settles the order: tender and discount are validated
// locally, the working copy is pushed unless the repository already has this
// revision, then the payment is recorded. A retry after a failed pay call
// therefore repeats only the pay call.
func (t *Terminal) ConfirmPayment(ctx context.Context) error {
	_, err := t.run(slotPay, func(gen uint64) (any, error) {
		t.mu.Lock()
		if t.generation != gen {
			t.mu.Unlock()
			return nil, ErrSuperseded
		}
		if t.w.state != StateCheckout {
			defer t.mu.Unlock()
			return nil, transitionError("confirm payment", t.w.state)
		}
		if err := t.w.checkoutBlocker(); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		f := t.w.figures()
		if err := settlement.CanConfirm(f.tender, f.discount, t.w.headcount); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		id, rev := t.w.orderID, t.w.revision
		needsPush := !t.w.synced || t.w.pushed != t.w.revision
		pay := repository.Payment{
			PaymentMethod: t.w.payment,
			TotalBill:     f.total,
			TotalDiscount: decimal.Min(f.discount.TotalDiscount, f.total),
		}
		t.mu.Unlock()

		if needsPush {
			if err := t.pushAtLeast(ctx, gen, rev); err != nil {
				return nil, err
			}
		}

		if _, err := t.repo.PayOrder(ctx, id, pay); err != nil {
			log.WithError(err).WithField("order_id", id).Error("pay order")
			return nil, &RepositoryError{Op: "pay order", Err: err}
		}

		t.mu.Lock()
		if t.generation == gen {
			t.w.state = StatePaid
		}
		t.mu.Unlock()

		t.deleteTag(ctx, id)
		log.WithFields(log.Fields{
			"order_id": id,
			"method":   pay.PaymentMethod,
			"bill":     pay.TotalBill.StringFixed(2),
			"discount": pay.TotalDiscount.StringFixed(2),
		}).Info("order paid")
		return nil, nil
	})
	return err
}

// pushAtLeast pushes through the update slot until the repository has seen
// revision rev. A concurrent Update started on an older revision is joined
// first, then followed by one more push.
func (t *Terminal) pushAtLeast(ctx context.Context, gen, rev uint64) error {
	for range 2 {
		if _, err := t.run(slotUpdate, func(uint64) (any, error) {
			return nil, t.push(ctx, gen)
		}); err != nil {
			return err
		}
		t.mu.Lock()
		done := t.generation == gen && t.w.synced && t.w.pushed >= rev
		t.mu.Unlock()
		if done {
			return nil
		}
	}
	return ErrSuperseded
}

// Cancel cancels a persisted order and deletes its table tag.
func (t *Terminal) Cancel(ctx context.Context) error {
	_, err := t.run(slotCancel, func(gen uint64) (any, error) {
		t.mu.Lock()
		if t.generation != gen {
			t.mu.Unlock()
			return nil, ErrSuperseded
		}
		if !t.w.state.persisted() {
			defer t.mu.Unlock()
			return nil, transitionError("cancel", t.w.state)
		}
		id := t.w.orderID
		t.mu.Unlock()

		if _, err := t.repo.CancelOrder(ctx, id); err != nil {
			log.WithError(err).WithField("order_id", id).Error("cancel order")
			return nil, &RepositoryError{Op: "cancel order", Err: err}
		}

		t.mu.Lock()
		if t.generation == gen {
			t.w.state = StateCancelled
		}
		t.mu.Unlock()

		t.deleteTag(ctx, id)
		log.WithField("order_id", id).Info("order cancelled")
		return nil, nil
	})
	return err
}

// Tag store failures after a successful repository call are logged, not
// returned: the order itself has already moved on.
func (t *Terminal) writeTag(ctx context.Context, id uuid.UUID, table string) {
	if t.tags == nil {
		return
	}
	if err := t.tags.Set(ctx, id, table); err != nil {
		log.WithError(err).WithField("order_id", id).Warn("write table tag")
	}
}

func (t *Terminal) deleteTag(ctx context.Context, id uuid.UUID) {
	if t.tags == nil {
		return
	}
	if err := t.tags.Delete(ctx, id); err != nil {
		log.WithError(err).WithField("order_id", id).Warn("delete table tag")
	}
}

func orderItemIDs(o repository.Order) map[uuid.UUID]uuid.UUID {
	ids := make(map[uuid.UUID]uuid.UUID, len(o.Items))
	for _, it := range o.Items {
		ids[it.MenuItemID] = it.ID
	}
	return ids
}

func cartLines(items []repository.OrderItem) []cart.Line {
	lines := make([]cart.Line, 0, len(items))
	for _, it := range items {
		id := it.ID
		lines = append(lines, cart.Line{
			MenuItemID:  it.MenuItemID,
			Name:        it.Name,
			Price:       it.PriceAtTime,
			Quantity:    it.Quantity,
			Served:      it.Served,
			OrderItemID: &id,
		})
	}
	return lines
}

// figures are the derived settlement numbers of the working order.
type figures struct {
	total    decimal.Decimal
	discount discount.Result
	received decimal.Decimal
	tender   settlement.Tender
}

func (w *working) figures() figures {
	total := w.lines.Total()
	d := discount.Allocate(total, w.headcount, w.discounts)
	received, err := decimal.NewFromString(w.tendered)
	if err != nil {
		received = decimal.Zero
	}
	return figures{
		total:    total,
		discount: d,
		received: received,
		tender:   settlement.ValidateTender(d.AmountDue, w.payment, received),
	}
}
