// Package flow implements the multi-step signup flow: its state machine, the
// step entry rules and the step controllers.
package flow

import (
	"errors"
	"fmt"

	"onboarding_backend/internal/draft"
)

// Route paths of the flow.
const (
	PathLogin         = "/login"
	PathRegister      = "/register"
	PathPersonalInfo  = "/personal-info"
	PathAddressSearch = "/address-search"
	PathAddressForm   = "/address-form"
	PathSuccess       = "/success"
	PathDashboard     = "/dashboard"
)

// Step identifies a screen of the flow.
type Step string

const (
	StepLogin         Step = "login"
	StepRegister      Step = "register"
	StepPersonalInfo  Step = "personal-info"
	StepAddressSearch Step = "address-search"
	StepAddressForm   Step = "address-form"
	StepSuccess       Step = "success"
)

// Path is the route of the step.
func (s Step) Path() string {
	return "/" + string(s)
}

// State is the signup state of a session.
type State string

const (
	AwaitingAccount      State = "awaiting-account"
	AwaitingPersonalInfo State = "awaiting-personal-info"
	AwaitingLocation     State = "awaiting-location"
	AwaitingAddress      State = "awaiting-address"
	Complete             State = "complete"
)

var stateOrder = map[State]int{
	AwaitingAccount:      0,
	AwaitingPersonalInfo: 1,
	AwaitingLocation:     2,
	AwaitingAddress:      3,
	Complete:             4,
}

// Event is something a step controller did.
type Event string

const (
	AccountCreated    Event = "account-created"
	PersonalInfoSaved Event = "personal-info-saved"
	LocationChosen    Event = "location-chosen"
	AddressSaved      Event = "address-saved"
	SignedOut         Event = "signed-out"
)

// transitions maps each event to the state it may fire from and the state it leads to.
var transitions = map[Event]struct{ from, to State }{
	AccountCreated:    {AwaitingAccount, AwaitingPersonalInfo},
	PersonalInfoSaved: {AwaitingPersonalInfo, AwaitingLocation},
	LocationChosen:    {AwaitingLocation, AwaitingAddress},
	AddressSaved:      {AwaitingAddress, Complete},
}

// ErrOutOfOrder is returned by Transition for an event whose predecessor has not happened.
var ErrOutOfOrder = errors.New("flow: event out of order")

// Transition applies ev to from. An event may repeat an already completed step
// (a user going back and resubmitting) but never skip ahead. SignedOut resets
// the flow from any state.
func Transition(from State, ev Event) (State, error) {
	if ev == SignedOut {
		return AwaitingAccount, nil
	}
	t, ok := transitions[ev]
	if !ok {
		return from, fmt.Errorf("flow: unknown event %q", ev)
	}
	if from == Complete || stateOrder[from] < stateOrder[t.from] {
		return from, fmt.Errorf("%w: %s in state %s", ErrOutOfOrder, ev, from)
	}
	if stateOrder[t.to] > stateOrder[from] {
		return t.to, nil
	}
	return from, nil
}

// StateOf derives the state from the draft slices present.
func StateOf(snap draft.Snapshot, completed bool) State {
	switch {
	case completed:
		return Complete
	case snap.PersonalInfo != nil && snap.Location != nil:
		return AwaitingAddress
	case snap.PersonalInfo != nil:
		return AwaitingLocation
	case snap.Registration != nil:
		return AwaitingPersonalInfo
	default:
		return AwaitingAccount
	}
}

// NextPath is where a session in state s continues.
func NextPath(s State) string {
	switch s {
	case AwaitingPersonalInfo:
		return PathPersonalInfo
	case AwaitingLocation:
		return PathAddressSearch
	case AwaitingAddress:
		return PathAddressForm
	case Complete:
		return PathSuccess
	default:
		return PathRegister
	}
}

// Admit applies the entry preconditions of step. It returns the path to
// redirect to, or "" when the step may render.
func Admit(step Step, snap draft.Snapshot) string {
	switch step {
	case StepPersonalInfo:
		if snap.Registration == nil {
			return PathRegister
		}
	case StepAddressSearch:
		if snap.PersonalInfo == nil {
			return PathPersonalInfo
		}
	case StepAddressForm:
		if snap.PersonalInfo == nil || snap.Location == nil {
			return PathAddressSearch
		}
	}
	return ""
}
