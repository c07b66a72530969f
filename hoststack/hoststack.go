// Package hoststack defines the boundary between the provisioning service and
// the Bluetooth LE host stack that runs the peripheral role.
//
// Stacks deliver events to an EventHandler from a single goroutine. Handlers
// must return quickly and must not call back into the stack; outbound traffic
// is sent later from the service's poll loop.
package hoststack

import (
	"time"

	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/wire/gatt"
)

// Address types reported on connect.
const (
	AddrPublic uint8 = 0
	AddrRandom uint8 = 1
)

// Connection is a connected central.
type Connection struct {
	Handle   uint16
	Addr     string
	AddrType uint8
}

// EventHandler receives host stack events.
type EventHandler interface {
	OnConnect(c Connection)
	OnDisconnect(c Connection)
	// OnWrite returns an ATT error code; 0 accepts the write.
	OnWrite(conn uint16, attr uint16, value []byte) uint8
	OnPasskeyAction(ev pairing.Event)
}

// Advertisement is what the stack puts on air.
type Advertisement struct {
	Interval     time.Duration
	Data         []byte // advertising data, see wire/advertising.Build
	ScanResponse []byte
}

// Stack is a peripheral-role host stack.
type Stack interface {
	pairing.Responder

	SetHandler(h EventHandler)
	ConfigureSecurity(sec pairing.Security) error
	RegisterService(svc gatt.Service) (*gatt.ServiceHandleInfo, error)

	// WriteLocal sets the value served to reads of attr.
	WriteLocal(attr uint16, value []byte) error
	Notify(conn uint16, attr uint16, value []byte) error
	Indicate(conn uint16, attr uint16, value []byte) error

	Advertise(adv Advertisement) error
	StopAdvertising() error
}

// WriteNotifier is implemented by stacks whose WriteLocal already notifies
// every subscribed client.
type WriteNotifier interface {
	NotifiesOnWrite() bool
}
