package ledger

import (
	"time"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/models"
)

// EstimatedDeliveryWindow is added to the confirmation time.
const EstimatedDeliveryWindow = 72 * time.Hour

type party uint8

const (
	partyBuyer party = 1 << iota
	partyFarmer
)

const partyEither = partyBuyer | partyFarmer

// transitions lists, per current status, the reachable statuses and who may
// trigger each move. Statuses missing from the map are terminal.
var transitions = map[models.OrderStatus]map[models.OrderStatus]party{
	models.OrderStatusPending: {
		models.OrderStatusCancelled: partyEither,
		models.OrderStatusConfirmed: partyFarmer,
		models.OrderStatusDisputed:  partyEither,
	},
	models.OrderStatusConfirmed: {
		models.OrderStatusShipped:  partyFarmer,
		models.OrderStatusDisputed: partyEither,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered: partyBuyer,
		models.OrderStatusDisputed:  partyEither,
	},
}

func partyOf(o *models.Order, userID string) party {
	var p party
	if userID == "" {
		return p
	}
	if o.BuyerID == userID {
		p |= partyBuyer
	}
	if o.FarmerID == userID {
		p |= partyFarmer
	}
	return p
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status models.OrderStatus) bool {
	_, ok := transitions[status]
	return !ok
}

// CanTransition checks a move without applying it.
func CanTransition(o *models.Order, userID string, to models.OrderStatus) error {
	const op = "ledger.Transition"
	if !to.Valid() {
		return apperrors.Validation(op, "unknown order status %q", to)
	}
	who := partyOf(o, userID)
	if who == 0 {
		return apperrors.Authorization(op, "only the buyer or the farmer of order %s may change it", o.OrderID)
	}
	allowed, ok := transitions[o.Status][to]
	if !ok {
		return apperrors.StateConflict(op, "cannot move order %s from %s to %s", o.OrderID, o.Status, to)
	}
	if allowed&who == 0 {
		return apperrors.Authorization(op, "order %s can be moved to %s by %s only", o.OrderID, to, describe(allowed))
	}
	return nil
}

// Transition applies a status change to o. On error o is left untouched.
func Transition(o *models.Order, userID string, to models.OrderStatus, now time.Time) error {
	if err := CanTransition(o, userID, to); err != nil {
		return err
	}
	now = now.UTC()
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case models.OrderStatusConfirmed:
		eta := now.Add(EstimatedDeliveryWindow)
		o.EstimatedAt = &eta
	case models.OrderStatusDelivered:
		o.DeliveredAt = &now
	}
	return nil
}

// Rate records a 1-5 rating from one party of a delivered order. BuyerRating
// is the rating given by the buyer, FarmerRating the one given by the farmer.
// Each party rates once.
func Rate(o *models.Order, userID string, rating int, now time.Time) error {
	const op = "ledger.Rate"
	if rating < 1 || rating > 5 {
		return apperrors.Validation(op, "rating must be between 1 and 5, got %d", rating)
	}
	who := partyOf(o, userID)
	if who == 0 {
		return apperrors.Authorization(op, "only the buyer or the farmer of order %s may rate it", o.OrderID)
	}
	if o.Status != models.OrderStatusDelivered {
		return apperrors.StateConflict(op, "order %s is %s, only delivered orders can be rated", o.OrderID, o.Status)
	}
	slot := &o.BuyerRating
	if who&partyBuyer == 0 {
		slot = &o.FarmerRating
	}
	if *slot != nil {
		return apperrors.StateConflict(op, "order %s was already rated by this party", o.OrderID)
	}
	r := rating
	*slot = &r
	o.UpdatedAt = now.UTC()
	return nil
}

func describe(p party) string {
	switch p {
	case partyBuyer:
		return "the buyer"
	case partyFarmer:
		return "the farmer"
	default:
		return "the buyer or the farmer"
	}
}
