// Package session drives the order lifecycle: welcome → processing →
// ordering ⇄ summary, with checkout recycling back to welcome and a history
// view reachable from welcome.
//
// Transitions are pure: Transition maps a snapshot and an event to the next
// snapshot plus a list of side effects for the executor to run. Ambient
// mutation stays out of the machine so every rule is testable in isolation.
package session

import (
	"fmt"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// State is one of the strictly ordered application states.
type State string

const (
	StateWelcome    State = "welcome"
	StateProcessing State = "processing"
	StateOrdering   State = "ordering"
	StateSummary    State = "summary"
	StateHistory    State = "history"
)

// Snapshot is the serializable application state threaded through the
// machine. Menu and Cart are owned by exactly one active session.
type Snapshot struct {
	State      State
	Generation uint64
	Menu       *menu.MenuData
	Cart       menu.Cart
	Location   *menu.GeoLocation
}

// NewSnapshot returns the initial application state.
func NewSnapshot() Snapshot {
	return Snapshot{State: StateWelcome, Cart: menu.Cart{}}
}

// Event is a discrete user action or pipeline completion.
type Event interface{ isEvent() }

// EvSubmit starts an extraction for a batch of photos. Valid from welcome.
type EvSubmit struct {
	Location *menu.GeoLocation
}

// EvExtracted delivers a successful extraction result for a generation.
type EvExtracted struct {
	Generation uint64
	Data       menu.MenuData
}

// EvExtractFailed delivers an extraction failure for a generation.
type EvExtractFailed struct {
	Generation uint64
	Err        error
}

// EvUpdateCart applies a quantity delta while ordering or reviewing.
type EvUpdateCart struct {
	Item  menu.MenuItem
	Delta int
}

// EvOpenSummary navigates ordering → summary.
type EvOpenSummary struct{}

// EvCloseSummary navigates summary → ordering.
type EvCloseSummary struct{}

// EvBack returns to welcome from ordering, summary or history. From
// processing it abandons the in-flight extraction: the generation advances
// so a stale completion is dropped on arrival.
type EvBack struct{}

// EvOpenHistory navigates welcome → history.
type EvOpenHistory struct{}

// EvCheckout finishes the order from summary.
type EvCheckout struct {
	Record menu.HistoryRecord
}

// EvDeleteRecord removes a history record; only available in history.
type EvDeleteRecord struct {
	ID string
}

func (EvSubmit) isEvent()        {}
func (EvExtracted) isEvent()     {}
func (EvExtractFailed) isEvent() {}
func (EvUpdateCart) isEvent()    {}
func (EvOpenSummary) isEvent()   {}
func (EvCloseSummary) isEvent()  {}
func (EvBack) isEvent()          {}
func (EvOpenHistory) isEvent()   {}
func (EvCheckout) isEvent()      {}
func (EvDeleteRecord) isEvent()  {}

// Effect is a side effect the executor must run after a transition.
type Effect interface{ isEffect() }

// FxStartExtraction asks the executor to run the extraction pipeline tagged
// with the submission's generation.
type FxStartExtraction struct {
	Generation uint64
}

// FxAppendHistory persists a finished order.
type FxAppendHistory struct {
	Record menu.HistoryRecord
}

// FxDropSessionCache discards the persisted menu session cache.
type FxDropSessionCache struct{}

// FxRemoveHistory deletes one history record.
type FxRemoveHistory struct {
	ID string
}

// FxSurfaceError shows a human-readable error to the user.
type FxSurfaceError struct {
	Err error
}

func (FxStartExtraction) isEffect()  {}
func (FxAppendHistory) isEffect()    {}
func (FxDropSessionCache) isEffect() {}
func (FxRemoveHistory) isEffect()    {}
func (FxSurfaceError) isEffect()     {}

// ErrBusy rejects a submission while an extraction is already in flight.
// At most one extraction runs per session; a second submission is refused
// rather than interleaved.
var ErrBusy = fmt.Errorf("an extraction is already in progress")

// TransitionError reports an event that is not legal in the current state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %T not allowed in state %s", e.Event, e.From)
}

// Transition applies ev to snap and returns the next snapshot plus the
// effects to execute. The input snapshot is never mutated.
func Transition(snap Snapshot, ev Event) (Snapshot, []Effect, error) {
	switch ev := ev.(type) {
	case EvSubmit:
		if snap.State == StateProcessing {
			return snap, nil, ErrBusy
		}
		if snap.State != StateWelcome {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		snap.State = StateProcessing
		snap.Generation++
		snap.Location = ev.Location
		return snap, []Effect{FxStartExtraction{Generation: snap.Generation}}, nil

	case EvExtracted:
		if snap.State != StateProcessing || ev.Generation != snap.Generation {
			// Stale or abandoned result; drop without touching state.
			return snap, nil, nil
		}
		data := ev.Data
		snap.State = StateOrdering
		snap.Menu = &data
		snap.Cart = menu.Cart{}
		return snap, nil, nil

	case EvExtractFailed:
		if snap.State != StateProcessing || ev.Generation != snap.Generation {
			return snap, nil, nil
		}
		snap.State = StateWelcome
		return snap, []Effect{FxSurfaceError{Err: ev.Err}}, nil

	case EvUpdateCart:
		if snap.State != StateOrdering && snap.State != StateSummary {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		snap.Cart = menu.UpdateCart(snap.Cart, ev.Item, ev.Delta)
		return snap, nil, nil

	case EvOpenSummary:
		if snap.State != StateOrdering {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		snap.State = StateSummary
		return snap, nil, nil

	case EvCloseSummary:
		if snap.State != StateSummary {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		snap.State = StateOrdering
		return snap, nil, nil

	case EvBack:
		switch snap.State {
		case StateOrdering, StateSummary, StateHistory:
			snap.State = StateWelcome
			return snap, nil, nil
		case StateProcessing:
			snap.State = StateWelcome
			snap.Generation++
			return snap, nil, nil
		default:
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}

	case EvOpenHistory:
		if snap.State != StateWelcome {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		snap.State = StateHistory
		return snap, nil, nil

	case EvCheckout:
		if snap.State != StateSummary {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		snap.State = StateWelcome
		snap.Cart = menu.Cart{}
		snap.Menu = nil
		return snap, []Effect{
			FxAppendHistory{Record: ev.Record},
			FxDropSessionCache{},
		}, nil

	case EvDeleteRecord:
		if snap.State != StateHistory {
			return snap, nil, &TransitionError{From: snap.State, Event: ev}
		}
		return snap, []Effect{FxRemoveHistory{ID: ev.ID}}, nil

	default:
		return snap, nil, &TransitionError{From: snap.State, Event: ev}
	}
}
