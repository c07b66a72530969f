//go:build linux

package bluez

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/pairing"
)

const (
	BluezDBusService  = "org.bluez"
	BluezAgentPath    = "/wifiprov/agent"
	BluezAgentManager = "org.bluez.AgentManager1"
	BluezAgent        = "org.bluez.Agent1"
)

// ReplyTimeout bounds how long an agent call waits for the poll loop.
var ReplyTimeout = 25 * time.Second

var (
	errRejected = dbus.NewError("org.bluez.Error.Rejected", nil)
	errCanceled = dbus.NewError("org.bluez.Error.Canceled", nil)
)

type pendingKey struct {
	conn   uint16
	action pairing.Action
}

// Agent implements org.bluez.Agent1. Each request is forwarded to the stack
// handler as a passkey action; requests that need an answer wait for
// Stack.PasskeyReply.
type Agent struct {
	stack *Stack
	conn  *dbus.Conn

	mu      sync.Mutex
	pending map[pendingKey]chan uint32
}

var ioCapabilities = map[pairing.IOCapability]string{
	pairing.IODisplayOnly:     "DisplayOnly",
	pairing.IODisplayYesNo:    "DisplayYesNo",
	pairing.IOKeyboardOnly:    "KeyboardOnly",
	pairing.IONoInputOutput:   "NoInputNoOutput",
	pairing.IOKeyboardDisplay: "KeyboardDisplay",
}

// NewAgent exports the agent on the system bus and makes it the default.
func NewAgent(stack *Stack, sec pairing.Security) (*Agent, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system DBus: %w", err)
	}

	a := &Agent{stack: stack, conn: conn, pending: make(map[pendingKey]chan uint32)}
	if err := conn.Export(a, BluezAgentPath, BluezAgent); err != nil {
		return nil, fmt.Errorf("failed to export Bluez agent: %w", err)
	}

	capability, ok := ioCapabilities[sec.IO]
	if !ok {
		return nil, fmt.Errorf("bluez: unknown IO capability %d", sec.IO)
	}

	obj := conn.Object(BluezDBusService, "/org/bluez")
	if err := obj.Call(BluezAgentManager+".RegisterAgent", 0, dbus.ObjectPath(BluezAgentPath), capability).Err; err != nil {
		return nil, fmt.Errorf("failed to register Bluez agent: %w", err)
	}
	if err := obj.Call(BluezAgentManager+".RequestDefaultAgent", 0, dbus.ObjectPath(BluezAgentPath)).Err; err != nil {
		return nil, fmt.Errorf("failed to set default Bluez agent: %w", err)
	}

	logger.Debug("bluez", "agent registered with capability %s (mitm=%v bond=%v)", capability, sec.MITM, sec.Bond)
	return a, nil
}

func (a *Agent) Release() *dbus.Error {
	logger.Debug("bluez", "agent released")
	return nil
}

func (a *Agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	return "", errRejected
}

func (a *Agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	return errRejected
}

// RequestPasskey asks this side to input the passkey shown on the peer.
func (a *Agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	v, err := a.ask(device, pairing.ActionInput, 0, false)
	return v, err
}

func (a *Agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	// BlueZ repeats this call for every key typed on the peer
	if entered == 0 {
		a.notify(device, pairing.ActionDisplay, passkey)
	}
	return nil
}

func (a *Agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	accept, err := a.ask(device, pairing.ActionNumericComparison, passkey, true)
	if err != nil {
		return err
	}
	if accept == 0 {
		return errRejected
	}
	a.trustDevice(device)
	return nil
}

func (a *Agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	a.notify(device, pairing.ActionNone, 0)
	return nil
}

func (a *Agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	return nil
}

func (a *Agent) Cancel() *dbus.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, ch := range a.pending {
		close(ch)
		delete(a.pending, key)
	}
	return nil
}

func (a *Agent) notify(device dbus.ObjectPath, action pairing.Action, passkey uint32) {
	a.stack.raise(pairing.Event{
		Conn:       a.stack.handleFor(convertDBusPathToMAC(string(device))),
		Action:     action,
		Passkey:    passkey,
		HasPasskey: action == pairing.ActionDisplay || action == pairing.ActionNumericComparison,
	})
}

func (a *Agent) ask(device dbus.ObjectPath, action pairing.Action, passkey uint32, hasPasskey bool) (uint32, *dbus.Error) {
	conn := a.stack.handleFor(convertDBusPathToMAC(string(device)))
	key := pendingKey{conn: conn, action: action}
	ch := make(chan uint32, 1)

	a.mu.Lock()
	a.pending[key] = ch
	a.mu.Unlock()

	a.stack.raise(pairing.Event{Conn: conn, Action: action, Passkey: passkey, HasPasskey: hasPasskey})

	t := time.NewTimer(ReplyTimeout)
	defer t.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			return 0, errCanceled
		}
		return v, nil
	case <-t.C:
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
		logger.Warn("bluez", "no %s reply for %s within %s", action, device, ReplyTimeout)
		return 0, errRejected
	}
}

func (a *Agent) reply(conn uint16, action pairing.Action, value uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := pendingKey{conn: conn, action: action}
	ch, ok := a.pending[key]
	if !ok {
		return fmt.Errorf("bluez: no pending %s request for connection %d", action, conn)
	}
	delete(a.pending, key)
	ch <- value
	return nil
}

// trustDevice marks the peer trusted so reconnects skip the agent.
func (a *Agent) trustDevice(device dbus.ObjectPath) {
	obj := a.conn.Object(BluezDBusService, device)
	call := obj.Call("org.freedesktop.DBus.Properties.Set", 0,
		"org.bluez.Device1", "Trusted", dbus.MakeVariant(true))
	if call.Err != nil {
		logger.Warn("bluez", "failed to set Trusted on %s: %v", device, call.Err)
	}
}

// convertDBusPathToMAC turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into AA:BB:CC:DD:EE:FF.
func convertDBusPathToMAC(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if !strings.HasPrefix(last, "dev_") {
		return ""
	}
	return strings.ReplaceAll(strings.TrimPrefix(last, "dev_"), "_", ":")
}
