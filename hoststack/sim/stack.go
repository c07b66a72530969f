// Package sim is an in-memory peripheral host stack. It serves a GATT
// attribute database, tracks per-connection CCCD subscriptions and records
// every notification, indication and passkey reply. The peer-side helpers
// (Connect, Write, Subscribe, ...) play the part of a central.
package sim

import (
	"fmt"
	"sync"

	"github.com/user/wifiprov/hoststack"
	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/wire"
	"github.com/user/wifiprov/wire/att"
	"github.com/user/wifiprov/wire/gatt"
)

// Kind of outbound value update.
type Kind string

const (
	KindNotify   Kind = "notify"
	KindIndicate Kind = "indicate"
)

// Outbound is a value pushed to a peer.
type Outbound struct {
	Kind  Kind
	Conn  uint16
	Attr  uint16
	Value []byte
}

// Reply is a recorded passkey reply.
type Reply struct {
	Conn   uint16
	Action pairing.Action
	Value  uint32
}

type peer struct {
	conn    hoststack.Connection
	mtu     int
	cccd    *gatt.CCCDManager
	prepare att.PrepareQueue
}

// Stack is a simulated host stack.
type Stack struct {
	// RequireSubscription makes Notify and Indicate fail unless the peer
	// enabled them through the CCCD, as a real stack would.
	RequireSubscription bool

	radio *wire.Simulator

	// events serializes delivery to the handler
	events sync.Mutex

	mu          sync.Mutex
	handler     hoststack.EventHandler
	security    pairing.Security
	db          *gatt.AttributeDatabase
	cccdOwner   map[uint16]uint16 // CCCD handle -> value handle
	peers       map[uint16]*peer
	nextConn    uint16
	adv         hoststack.Advertisement
	advertising bool
	advCount    int
	sent        []Outbound
	replies     []Reply
}

// New returns a stack with radio behavior from config (nil is lossless).
func New(config *wire.SimulationConfig) *Stack {
	if config == nil {
		config = wire.PerfectSimulationConfig()
	}
	return &Stack{
		radio:     wire.NewSimulator(config),
		db:        gatt.NewAttributeDatabase(),
		cccdOwner: make(map[uint16]uint16),
		peers:     make(map[uint16]*peer),
		nextConn:  1,
	}
}

func (s *Stack) SetHandler(h hoststack.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Stack) ConfigureSecurity(sec pairing.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = sec
	return nil
}

// Security returns the configuration set by ConfigureSecurity.
func (s *Stack) Security() pairing.Security {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.security
}

func (s *Stack) RegisterService(svc gatt.Service) (*gatt.ServiceHandleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := gatt.AddService(s.db, svc)
	for cccd, value := range info.CCCDHandles {
		s.cccdOwner[cccd] = value
	}
	logger.Debug("sim", "registered service %s handles 0x%04X-0x%04X",
		gatt.UUIDString(svc.UUID), info.StartHandle, info.EndHandle)
	return info, nil
}

func (s *Stack) WriteLocal(attr uint16, value []byte) error {
	return s.db.SetAttributeValue(attr, value)
}

func (s *Stack) Notify(conn uint16, attr uint16, value []byte) error {
	return s.push(KindNotify, conn, attr, value)
}

func (s *Stack) Indicate(conn uint16, attr uint16, value []byte) error {
	return s.push(KindIndicate, conn, attr, value)
}

func (s *Stack) push(kind Kind, conn, attr uint16, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[conn]
	if !ok {
		return fmt.Errorf("sim: %s on unknown connection %d", kind, conn)
	}
	if _, err := s.db.GetAttribute(attr); err != nil {
		return att.NewError(att.ErrInvalidHandle, attr)
	}
	if len(value) > wire.MaxValueLen(p.mtu) {
		return fmt.Errorf("sim: %s of %d bytes exceeds MTU %d", kind, len(value), p.mtu)
	}
	if s.RequireSubscription {
		enabled := p.cccd.IsNotifyEnabled(attr)
		if kind == KindIndicate {
			enabled = p.cccd.IsIndicateEnabled(attr)
		}
		if !enabled {
			return att.NewError(att.ErrCCCDImproperlyConfigured, attr)
		}
	}

	tries := 1
	if kind == KindIndicate {
		tries += s.radio.Config().MaxRetries
	}
	for i := 0; i < tries; i++ {
		if s.radio.ShouldPacketSucceed() {
			s.sent = append(s.sent, Outbound{Kind: kind, Conn: conn, Attr: attr, Value: append([]byte(nil), value...)})
			return nil
		}
	}
	if kind == KindIndicate {
		return fmt.Errorf("sim: indication to connection %d not confirmed after %d attempts", conn, tries)
	}
	// lost notifications are silent
	return nil
}

func (s *Stack) Advertise(adv hoststack.Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adv = adv
	s.advertising = true
	s.advCount++
	return nil
}

func (s *Stack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertising = false
	return nil
}

func (s *Stack) PasskeyReply(conn uint16, action pairing.Action, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[conn]; !ok {
		return fmt.Errorf("sim: passkey reply on unknown connection %d", conn)
	}
	s.replies = append(s.replies, Reply{Conn: conn, Action: action, Value: value})
	return nil
}

var _ hoststack.Stack = (*Stack)(nil)
