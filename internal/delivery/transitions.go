package delivery

import (
	"errors"
	"fmt"
	"slices"

	"deliverysync/internal/model"
)

// ErrInvalidTransition is returned for any (from, to) pair outside the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[model.DeliveryStatus][]model.DeliveryStatus{
	model.StatusPending:        {model.StatusAccepted, model.StatusCancelled},
	model.StatusAccepted:       {model.StatusAssigned, model.StatusCancelled},
	model.StatusAssigned:       {model.StatusPickedUp, model.StatusCancelled},
	model.StatusPickedUp:       {model.StatusInTransit, model.StatusCancelled},
	model.StatusInTransit:      {model.StatusOutForDelivery, model.StatusDelivered, model.StatusFailed},
	model.StatusOutForDelivery: {model.StatusDelivered, model.StatusFailed},
	model.StatusDelivered:      {},
	model.StatusFailed:         {model.StatusReturned, model.StatusAccepted},
	model.StatusReturned:       {model.StatusAccepted, model.StatusCancelled},
	model.StatusCancelled:      {},
}

// Allowed returns the statuses reachable from from in one step.
func Allowed(from model.DeliveryStatus) []model.DeliveryStatus {
	return slices.Clone(transitions[from])
}

func CanTransition(from, to model.DeliveryStatus) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s model.DeliveryStatus) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func checkTransition(from, to model.DeliveryStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
