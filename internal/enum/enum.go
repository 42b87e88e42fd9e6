package enum

import "errors"

// Errors returned when parsing wire tags.
var (
	ErrUnknownChannel       = errors.New("unknown order channel")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrUnknownDiscountKind  = errors.New("unknown discount kind")
)

// ── Ordering channel (stored as the order "status" tag on the wire) ──

// Channel is the closed set of ordering channels a terminal can place.
type Channel string

const (
	ChannelDineIn    Channel = "Dine In"
	ChannelTakeOut   Channel = "Take Out"
	ChannelFoodpanda Channel = "Foodpanda"
	ChannelGrab      Channel = "Grab"
)

// channelTraits is the exhaustive behavior table for channels.
type channelTraits struct {
	requiresTable       bool
	requiresFulfillment bool
	thirdParty          bool
	statsBucket         string
}

var channels = map[Channel]channelTraits{
	ChannelDineIn:    {requiresTable: true, requiresFulfillment: true, statsBucket: StatsDineIn},
	ChannelTakeOut:   {requiresFulfillment: true, statsBucket: StatsTakeOut},
	ChannelFoodpanda: {requiresFulfillment: true, thirdParty: true, statsBucket: StatsTakeOut},
	ChannelGrab:      {requiresFulfillment: true, thirdParty: true, statsBucket: StatsTakeOut},
}

// Channels lists every channel in display order.
func Channels() []Channel {
	return []Channel{ChannelDineIn, ChannelTakeOut, ChannelFoodpanda, ChannelGrab}
}

// ParseChannel validates a wire tag.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if _, ok := channels[c]; !ok {
		return "", ErrUnknownChannel
	}
	return c, nil
}

func (c Channel) Valid() bool {
	_, ok := channels[c]
	return ok
}

// RequiresTable reports whether orders on this channel carry a table annotation.
func (c Channel) RequiresTable() bool { return channels[c].requiresTable }

// RequiresFulfillment reports whether every line must be served before checkout.
func (c Channel) RequiresFulfillment() bool { return channels[c].requiresFulfillment }

func (c Channel) ThirdParty() bool { return channels[c].thirdParty }

// StatsBucket is the daily stats counter this channel contributes to.
func (c Channel) StatsBucket() string { return channels[c].statsBucket }

// Daily stats buckets.
const (
	StatsDineIn    = "dine_in"
	StatsTakeOut   = "take_out"
	StatsCancelled = "cancelled"
)

// ── Payment ──

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "Cash"
	PaymentCard    PaymentMethod = "Credit / Debit"
	PaymentEWallet PaymentMethod = "E-Wallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentCash, PaymentCard, PaymentEWallet:
		return m, nil
	}
	return "", ErrUnknownPaymentMethod
}

// IsCash reports whether tender sufficiency and change apply.
func (m PaymentMethod) IsCash() bool { return m == PaymentCash }

// ── Discounts ──

type DiscountKind string

const (
	DiscountSenior DiscountKind = "Senior"
	DiscountPWD    DiscountKind = "PWD"
	DiscountCustom DiscountKind = "Custom"
)

func ParseDiscountKind(s string) (DiscountKind, error) {
	switch k := DiscountKind(s); k {
	case DiscountSenior, DiscountPWD, DiscountCustom:
		return k, nil
	}
	return "", ErrUnknownDiscountKind
}

// Fixed reports whether the kind carries the statutory flat rate.
func (k DiscountKind) Fixed() bool { return k == DiscountSenior || k == DiscountPWD }

// ── Persisted order state (CHECK constrained in DB) ──

const (
	OrderStateOpen      = "OPEN"
	OrderStatePaid      = "PAID"
	OrderStateCancelled = "CANCELLED"
)

// ── Staff roles (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
)
