package domain

import "time"

// Event names a lifecycle transition requested by an actor.
type Event string

const (
	EventConfirm           Event = "confirm"
	EventUpdateShippingFee Event = "update_shipping_fee"
	EventMarkShipping      Event = "mark_shipping"
	EventMarkDelivered     Event = "mark_delivered"
	EventComplete          Event = "complete"
	EventCancel            Event = "cancel"
)

// Role is the party an actor must be to invoke a transition.
type Role string

const (
	RoleBuyer         Role = "buyer"
	RoleSeller        Role = "seller"
	RoleBuyerOrSeller Role = "buyer or seller"
)

// rule is one row of the policy table: who may fire the event, from which
// statuses, and where the order lands.
type rule struct {
	actor Role
	from  []Status
	to    Status
}

// transitions is the single source of truth for the state machine.
// Authorization is checked before the status precondition, matching the
// order in which a caller would want the failures reported.
var transitions = map[Event]rule{
	EventConfirm:           {actor: RoleSeller, from: []Status{StatusPending}, to: StatusConfirmed},
	EventUpdateShippingFee: {actor: RoleSeller, from: []Status{StatusConfirmed}, to: StatusShippingFeeUpdated},
	EventMarkShipping:      {actor: RoleSeller, from: []Status{StatusConfirmed, StatusShippingFeeUpdated}, to: StatusShipping},
	EventMarkDelivered:     {actor: RoleSeller, from: []Status{StatusShipping}, to: StatusDelivered},
	EventComplete:          {actor: RoleBuyer, from: []Status{StatusDelivered}, to: StatusCompleted},
	EventCancel:            {actor: RoleBuyerOrSeller, from: []Status{StatusPending, StatusConfirmed}, to: StatusCancelled},
}

// TransitionArgs carries the per-event payload. Only the field owned by the
// event is consulted.
type TransitionArgs struct {
	// ShippingFee is required by EventUpdateShippingFee. Must be >= 0;
	// range validation happens at the edge before the event is fired.
	ShippingFee int

	// CancellationReason is recorded by EventCancel.
	CancellationReason string
}

// Guard checks, without mutating, whether actorID may fire event on the
// order in its current status. It returns NotAuthorizedError or
// InvalidTransitionError naming the specific violated rule.
func (o *Order) Guard(event Event, actorID int64) error {
	r, ok := transitions[event]
	if !ok {
		return &InvalidTransitionError{Current: o.Status, Event: event}
	}

	authorized := false
	switch r.actor {
	case RoleBuyer:
		authorized = actorID == o.BuyerID
	case RoleSeller:
		authorized = actorID == o.SellerID
	case RoleBuyerOrSeller:
		authorized = actorID == o.BuyerID || actorID == o.SellerID
	}
	if !authorized {
		return &NotAuthorizedError{Event: event, Required: r.actor}
	}

	for _, s := range r.from {
		if o.Status == s {
			return nil
		}
	}
	return &InvalidTransitionError{Current: o.Status, Event: event}
}

// Apply is the single mutation entry point for the state machine. It runs
// Guard and, on success, moves the order to the target status and sets
// exactly the fields owned by the transition. Timestamps are written once
// and never cleared.
func (o *Order) Apply(event Event, actorID int64, now time.Time, args TransitionArgs) error {
	if err := o.Guard(event, actorID); err != nil {
		return err
	}

	o.Status = transitions[event].to
	o.UpdatedAt = now

	switch event {
	case EventConfirm:
		o.ConfirmedAt = &now
	case EventUpdateShippingFee:
		fee := args.ShippingFee
		o.ShippingFee = &fee
		o.ShippingFeeUpdatedAt = &now
	case EventMarkShipping:
		// No dedicated timestamp for the shipping transition.
	case EventMarkDelivered:
		o.DeliveredAt = &now
	case EventComplete:
		o.CompletedAt = &now
	case EventCancel:
		actor := actorID
		o.CancelledAt = &now
		o.CancelledByID = &actor
		o.CancellationReason = args.CancellationReason
	}
	return nil
}
