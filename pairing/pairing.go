// Package pairing drives the passkey side of LE pairing. The host stack raises
// passkey actions; Machine handles one per Step and answers the stack where
// the action calls for an answer.
package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/user/wifiprov/logger"
)

// Action is the passkey action requested by the host stack.
type Action uint8

const (
	ActionNone              Action = 0
	ActionInput             Action = 2
	ActionDisplay           Action = 3
	ActionNumericComparison Action = 4
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionInput:
		return "INPUT"
	case ActionDisplay:
		return "DISPLAY"
	case ActionNumericComparison:
		return "NUMERIC_COMPARISON"
	}
	return fmt.Sprintf("ACTION(%d)", uint8(a))
}

// IOCapability advertised during pairing feature exchange.
type IOCapability uint8

const (
	IODisplayOnly     IOCapability = 0
	IODisplayYesNo    IOCapability = 1
	IOKeyboardOnly    IOCapability = 2
	IONoInputOutput   IOCapability = 3
	IOKeyboardDisplay IOCapability = 4
)

// Security is fixed when the service starts.
type Security struct {
	IO   IOCapability
	MITM bool
	Bond bool
}

// DefaultSecurity allows numeric comparison without bonding.
var DefaultSecurity = Security{IO: IODisplayYesNo}

// Event is a passkey action raised for a connection.
type Event struct {
	Conn       uint16
	Action     Action
	Passkey    uint32
	HasPasskey bool
}

// FormatPasskey renders a passkey as six zero-padded digits.
func FormatPasskey(passkey uint32) string {
	return fmt.Sprintf("%06d", passkey%1000000)
}

// Responder answers a passkey action. For numeric comparison value is 1 to
// accept and 0 to reject.
type Responder interface {
	PasskeyReply(conn uint16, action Action, value uint32) error
}

// Display shows a passkey to the local user.
type Display interface {
	ShowPasskey(ev Event, prompt string)
}

// Confirmer decides whether a numeric comparison matches.
type Confirmer interface {
	Confirm(ctx context.Context, ev Event) bool
}

// DefaultConfirmDelay is how long DelayConfirmer waits before answering.
const DefaultConfirmDelay = 3 * time.Second

// DelayConfirmer answers Accept after Delay, giving a person time to compare
// the digits. A cancelled context rejects.
type DelayConfirmer struct {
	Delay  time.Duration
	Accept bool
}

func (c DelayConfirmer) Confirm(ctx context.Context, ev Event) bool {
	t := time.NewTimer(c.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return c.Accept
	}
}

// State of the machine between steps.
type State int

const (
	NoPendingAction State = iota
	ActionRequired
)

// Machine handles passkey events. It is driven from a single goroutine.
type Machine struct {
	responder Responder
	display   Display
	confirmer Confirmer

	state   State
	current Action
}

// NewMachine returns a machine that replies through r. A nil display logs the
// passkey; a nil confirmer accepts after DefaultConfirmDelay.
func NewMachine(r Responder, d Display, c Confirmer) *Machine {
	if d == nil {
		d = LogDisplay{}
	}
	if c == nil {
		c = DelayConfirmer{Delay: DefaultConfirmDelay, Accept: true}
	}
	return &Machine{responder: r, display: d, confirmer: c}
}

// State reports whether an action is being handled and which one.
func (m *Machine) State() (State, Action) {
	return m.state, m.current
}

// Step handles one event and returns to NoPendingAction regardless of the
// outcome. Errors come from the responder and are for logging only.
func (m *Machine) Step(ctx context.Context, ev Event) error {
	m.state, m.current = ActionRequired, ev.Action
	defer func() { m.state, m.current = NoPendingAction, ActionNone }()

	switch ev.Action {
	case ActionNone:
		logger.Debug("pairing", "conn %d: passkey action none", ev.Conn)
		return nil

	case ActionInput:
		logger.Info("pairing", "conn %d: peer enters passkey", ev.Conn)
		return m.reply(ev, 0)

	case ActionDisplay:
		m.display.ShowPasskey(ev, "Enter this passkey on the other device")
		return nil

	case ActionNumericComparison:
		m.display.ShowPasskey(ev, "Confirm the passkey matches the other device")
		var accept uint32
		if m.confirmer.Confirm(ctx, ev) {
			accept = 1
		}
		logger.Info("pairing", "conn %d: numeric comparison accepted=%v", ev.Conn, accept == 1)
		return m.reply(ev, accept)

	default:
		logger.Warn("pairing", "conn %d: ignoring unsupported passkey action %s", ev.Conn, ev.Action)
		return nil
	}
}

func (m *Machine) reply(ev Event, value uint32) error {
	if err := m.responder.PasskeyReply(ev.Conn, ev.Action, value); err != nil {
		return fmt.Errorf("passkey reply for conn %d: %w", ev.Conn, err)
	}
	return nil
}

// LogDisplay writes the passkey to the log.
type LogDisplay struct{}

func (LogDisplay) ShowPasskey(ev Event, prompt string) {
	logger.Info("pairing", "%s: %s", prompt, FormatPasskey(ev.Passkey))
}
