package terminalapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/enum"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) registerTerminalRoutes(r chi.Router) {
	r.Get("/", h.GetSummary)
	r.Post("/draft", h.NewDraft)
	r.Post("/load", h.Load)

	r.Put("/channel", h.SetChannel)
	r.Put("/payment-method", h.SetPaymentMethod)
	r.Put("/reference", h.SetReference)
	r.Put("/table", h.SetTable)

	r.Post("/lines", h.AddItem)
	r.Delete("/lines", h.ClearLines)
	r.Patch("/lines/{lid}", h.AdjustQuantity)
	r.Delete("/lines/{lid}", h.RemoveItem)
	r.Post("/lines/{lid}/served", h.ToggleServed)

	r.Put("/headcount", h.SetHeadcount)
	r.Post("/discounts", h.AddDiscount)
	r.Put("/discounts/{did}", h.UpdateDiscount)
	r.Delete("/discounts/{did}", h.RemoveDiscount)
	r.Put("/tender", h.SetTender)

	r.Post("/checkout", h.EnterCheckout)
	r.Delete("/checkout", h.LeaveCheckout)

	r.Post("/place", h.Place)
	r.Post("/update", h.Update)
	r.Post("/pay", h.ConfirmPayment)
	r.Post("/cancel", h.Cancel)
}

// --- Request types ---

type channelRequest struct {
	Channel string `json:"channel"`
}

type paymentMethodRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type referenceRequest struct {
	OSNum string `json:"os_num"`
}

type tableRequest struct {
	Table string `json:"table"`
}

type loadRequest struct {
	OrderID string `json:"order_id"`
}

type addItemRequest struct {
	MenuID   string `json:"menu_id"`
	Quantity int    `json:"quantity"`
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

type headcountRequest struct {
	Headcount int `json:"headcount"`
}

type discountRequest struct {
	Type       string `json:"type"`
	Count      string `json:"count"`
	CustomRate string `json:"custom_rate"`
}

type tenderRequest struct {
	Received string `json:"received"`
}

// --- Handlers ---

// GetSummary handles GET /terminal.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.term.Summary())
}

func (h *Handler) respondSummary(w http.ResponseWriter, op string, err error) {
	if err != nil {
		writeActionError(w, op, err)
		return
	}
	writeData(w, http.StatusOK, h.term.Summary())
}

// NewDraft handles POST /terminal/draft. An empty body starts a Dine In draft.
func (h *Handler) NewDraft(w http.ResponseWriter, r *http.Request) {
	ch := enum.ChannelDineIn
	var req channelRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Channel != "" {
		parsed, err := enum.ParseChannel(req.Channel)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ch = parsed
	}
	h.respondSummary(w, "new draft", h.term.NewDraft(ch))
}

// Load handles POST /terminal/load.
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}
	h.respondSummary(w, "load", h.term.Load(r.Context(), id))
}

// SetChannel handles PUT /terminal/channel.
func (h *Handler) SetChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ch, err := enum.ParseChannel(req.Channel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondSummary(w, "set channel", h.term.SetChannel(ch))
}

// SetPaymentMethod handles PUT /terminal/payment-method.
func (h *Handler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := enum.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondSummary(w, "set payment method", h.term.SetPaymentMethod(m))
}

// SetReference handles PUT /terminal/reference.
func (h *Handler) SetReference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondSummary(w, "set reference", h.term.SetReference(req.OSNum))
}

// SetTable handles PUT /terminal/table.
func (h *Handler) SetTable(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondSummary(w, "set table", h.term.SetTable(req.Table))
}

// AddItem handles POST /terminal/lines. The price is snapshotted from the
// branch menu, never taken from the request.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	menuID, err := uuid.Parse(req.MenuID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu ID")
		return
	}

	items, err := h.catalog.Menu(r.Context(), branchFromContext(r.Context()).ID)
	if err != nil {
		log.WithError(err).Warn("list menu")
		writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
		return
	}
	for _, it := range items {
		if it.ID != menuID {
			continue
		}
		_, err := h.term.AddItem(cart.MenuItem{ID: it.ID, Name: it.Name, Price: it.Price}, req.Quantity)
		h.respondSummary(w, "add item", err)
		return
	}
	writeError(w, http.StatusNotFound, "menu item not found")
}

// ClearLines handles DELETE /terminal/lines.
func (h *Handler) ClearLines(w http.ResponseWriter, r *http.Request) {
	h.respondSummary(w, "clear lines", h.term.ClearLines())
}

func lineID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid line ID")
		return uuid.Nil, false
	}
	return id, true
}

// AdjustQuantity handles PATCH /terminal/lines/{lid}.
func (h *Handler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondSummary(w, "adjust quantity", h.term.AdjustQuantity(id, req.Delta))
}

// RemoveItem handles DELETE /terminal/lines/{lid}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}
	h.respondSummary(w, "remove item", h.term.RemoveItem(id))
}

// ToggleServed handles POST /terminal/lines/{lid}/served.
func (h *Handler) ToggleServed(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}
	h.respondSummary(w, "toggle served", h.term.ToggleServed(id))
}

// SetHeadcount handles PUT /terminal/headcount.
func (h *Handler) SetHeadcount(w http.ResponseWriter, r *http.Request) {
	var req headcountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondSummary(w, "set headcount", h.term.SetHeadcount(req.Headcount))
}

func (req discountRequest) kind() (enum.DiscountKind, error) {
	return enum.ParseDiscountKind(req.Type)
}

// AddDiscount handles POST /terminal/discounts.
func (h *Handler) AddDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := req.kind()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.term.AddDiscount(kind, req.Count, req.CustomRate); err != nil {
		writeActionError(w, "add discount", err)
		return
	}
	writeData(w, http.StatusCreated, h.term.Summary())
}

func discountID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "did"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount ID")
		return 0, false
	}
	return id, true
}

// UpdateDiscount handles PUT /terminal/discounts/{did}.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := discountID(w, r)
	if !ok {
		return
	}
	var req discountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := req.kind()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondSummary(w, "update discount", h.term.UpdateDiscount(id, kind, req.Count, req.CustomRate))
}

// RemoveDiscount handles DELETE /terminal/discounts/{did}.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := discountID(w, r)
	if !ok {
		return
	}
	h.respondSummary(w, "remove discount", h.term.RemoveDiscount(id))
}

// SetTender handles PUT /terminal/tender.
func (h *Handler) SetTender(w http.ResponseWriter, r *http.Request) {
	var req tenderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondSummary(w, "set tender", h.term.SetTender(req.Received))
}

// EnterCheckout handles POST /terminal/checkout.
func (h *Handler) EnterCheckout(w http.ResponseWriter, r *http.Request) {
	h.respondSummary(w, "enter checkout", h.term.EnterCheckout())
}

// LeaveCheckout handles DELETE /terminal/checkout.
func (h *Handler) LeaveCheckout(w http.ResponseWriter, r *http.Request) {
	h.respondSummary(w, "leave checkout", h.term.LeaveCheckout())
}

// Place handles POST /terminal/place.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	if _, err := h.term.Place(r.Context()); err != nil {
		writeActionError(w, "place", err)
		return
	}
	h.nudge()
	writeData(w, http.StatusCreated, h.term.Summary())
}

// Update handles POST /terminal/update.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	err := h.term.Update(r.Context())
	if err == nil {
		h.nudge()
	}
	h.respondSummary(w, "update", err)
}

// ConfirmPayment handles POST /terminal/pay.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	err := h.term.ConfirmPayment(r.Context())
	if err == nil {
		h.nudge()
	}
	h.respondSummary(w, "pay", err)
}

// Cancel handles POST /terminal/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	err := h.term.Cancel(r.Context())
	if err == nil {
		h.nudge()
	}
	h.respondSummary(w, "cancel", err)
}

func (h *Handler) nudge() {
	if h.board != nil {
		h.board.Nudge()
	}
}
