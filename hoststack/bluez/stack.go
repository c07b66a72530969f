//go:build linux

// Package bluez runs the peripheral on a Linux BlueZ adapter through
// tinygo.org/x/bluetooth, with a D-Bus pairing agent for passkey actions.
package bluez

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/user/wifiprov/hoststack"
	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/wire/advertising"
	"github.com/user/wifiprov/wire/gatt"
)

// Stack adapts a BlueZ adapter to hoststack.Stack.
//
// BlueZ does not expose ATT connection handles, so handles are assigned per
// peer address on connect. Writes are attributed to the most recently
// connected peer, and notifications go to every subscriber.
type Stack struct {
	adapter *bluetooth.Adapter
	agent   *Agent

	// events serializes delivery to the handler
	events sync.Mutex

	mu       sync.Mutex
	handler  hoststack.EventHandler
	layout   *gatt.AttributeDatabase
	chars    map[uint16]*bluetooth.Characteristic
	byAddr   map[string]hoststack.Connection
	last     uint16
	nextConn uint16
	adv      *bluetooth.Advertisement
}

// Open enables the default adapter.
func Open() (*Stack, error) {
	s := &Stack{
		adapter:  bluetooth.DefaultAdapter,
		layout:   gatt.NewAttributeDatabase(),
		chars:    make(map[uint16]*bluetooth.Characteristic),
		byAddr:   make(map[string]hoststack.Connection),
		nextConn: 1,
	}
	s.adapter.SetConnectHandler(s.onConnect)
	if err := s.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	return s, nil
}

func (s *Stack) SetHandler(h hoststack.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// ConfigureSecurity registers the pairing agent with the matching capability.
func (s *Stack) ConfigureSecurity(sec pairing.Security) error {
	agent, err := NewAgent(s, sec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()
	return nil
}

// RegisterService adds svc to the adapter. Descriptors are not published;
// BlueZ creates CCCDs itself.
func (s *Stack) RegisterService(svc gatt.Service) (*gatt.ServiceHandleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	serviceUUID, err := toUUID(svc.UUID)
	if err != nil {
		return nil, err
	}

	info := gatt.AddService(s.layout, svc)
	configs := make([]bluetooth.CharacteristicConfig, 0, len(svc.Characteristics))
	for _, c := range svc.Characteristics {
		charUUID, err := toUUID(c.UUID)
		if err != nil {
			return nil, err
		}
		handle, err := gatt.FindCharacteristicHandle(info, c.UUID)
		if err != nil {
			return nil, err
		}

		ch := &bluetooth.Characteristic{}
		s.chars[handle] = ch
		cfg := bluetooth.CharacteristicConfig{
			Handle: ch,
			UUID:   charUUID,
			Value:  c.Value,
			Flags:  toFlags(c.Properties),
		}
		if c.Properties&(gatt.PropWrite|gatt.PropWriteWithoutResponse) != 0 {
			cfg.WriteEvent = func(_ bluetooth.Connection, offset int, value []byte) {
				s.onWrite(handle, offset, value)
			}
		}
		configs = append(configs, cfg)
	}

	if err := s.adapter.AddService(&bluetooth.Service{UUID: serviceUUID, Characteristics: configs}); err != nil {
		return nil, fmt.Errorf("unable to add bluetooth service to default adapter: %w", err)
	}
	return info, nil
}

func (s *Stack) WriteLocal(attr uint16, value []byte) error {
	return s.write(attr, value)
}

func (s *Stack) Notify(_ uint16, attr uint16, value []byte) error {
	return s.write(attr, value)
}

func (s *Stack) Indicate(_ uint16, attr uint16, value []byte) error {
	return s.write(attr, value)
}

// NotifiesOnWrite is true: a characteristic write goes out to every
// subscriber.
func (s *Stack) NotifiesOnWrite() bool { return true }

func (s *Stack) write(attr uint16, value []byte) error {
	s.mu.Lock()
	ch, ok := s.chars[attr]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("bluez: no characteristic at handle 0x%04X", attr)
	}
	if _, err := ch.Write(value); err != nil {
		return fmt.Errorf("bluez: write handle 0x%04X: %w", attr, err)
	}
	return nil
}

// Advertise decodes the payloads back into fields, since BlueZ builds the
// PDUs itself.
func (s *Stack) Advertise(adv hoststack.Advertisement) error {
	fields, err := advertising.Parse(adv.Data)
	if err != nil {
		return err
	}
	opts := bluetooth.AdvertisementOptions{
		LocalName: fields.Name,
		Interval:  bluetooth.NewDuration(adv.Interval),
	}
	for _, raw := range fields.Services {
		u, err := toUUID(raw)
		if err != nil {
			return err
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, u)
	}
	if len(adv.ScanResponse) > 0 {
		structures, err := advertising.DecodeADStructures(adv.ScanResponse)
		if err != nil {
			return err
		}
		if raw, data, ok := advertising.GetServiceData128(structures); ok {
			u, err := toUUID(raw)
			if err != nil {
				return err
			}
			opts.ServiceData = []bluetooth.ServiceDataElement{{UUID: u, Data: data}}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adv == nil {
		s.adv = s.adapter.DefaultAdvertisement()
		if s.adv == nil {
			return fmt.Errorf("bluez: default advertisement is nil")
		}
	} else {
		_ = s.adv.Stop()
	}
	if err := s.adv.Configure(opts); err != nil {
		return fmt.Errorf("failed to configure default advertisement: %w", err)
	}
	if err := s.adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	logger.Debug("bluez", "advertising %q", fields.Name)
	return nil
}

func (s *Stack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adv == nil {
		return nil
	}
	return s.adv.Stop()
}

func (s *Stack) PasskeyReply(conn uint16, action pairing.Action, value uint32) error {
	s.mu.Lock()
	agent := s.agent
	s.mu.Unlock()
	if agent == nil {
		return fmt.Errorf("bluez: no pairing agent registered")
	}
	return agent.reply(conn, action, value)
}

func (s *Stack) onConnect(device bluetooth.Device, connected bool) {
	addr := device.Address.String()

	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	c, known := s.byAddr[addr]
	switch {
	case connected && !known:
		c = hoststack.Connection{Handle: s.nextConn, Addr: addr, AddrType: hoststack.AddrRandom}
		s.nextConn++
		s.byAddr[addr] = c
		s.last = c.Handle
	case !connected && known:
		delete(s.byAddr, addr)
	default:
		s.mu.Unlock()
		return
	}
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		return
	}
	if connected {
		h.OnConnect(c)
	} else {
		h.OnDisconnect(c)
	}
}

func (s *Stack) onWrite(attr uint16, offset int, value []byte) {
	if offset != 0 {
		logger.Warn("bluez", "ignoring write at offset %d to handle 0x%04X", offset, attr)
		return
	}

	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	h, conn := s.handler, s.last
	s.mu.Unlock()

	if h == nil {
		return
	}
	// BlueZ has already accepted the write; a rejection can only be logged
	if code := h.OnWrite(conn, attr, value); code != 0 {
		logger.Warn("bluez", "write to handle 0x%04X rejected with ATT error 0x%02X", attr, code)
	}
}

func (s *Stack) raise(ev pairing.Event) {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.OnPasskeyAction(ev)
	}
}

func (s *Stack) handleFor(addr string) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byAddr[addr]; ok {
		return c.Handle
	}
	return 0
}

// toUUID converts a little-endian UUID from the service model.
func toUUID(le []byte) (bluetooth.UUID, error) {
	switch len(le) {
	case 2:
		return bluetooth.New16BitUUID(uint16(le[0]) | uint16(le[1])<<8), nil
	case 16:
		return bluetooth.ParseUUID(gatt.UUIDString(le))
	default:
		return bluetooth.UUID{}, fmt.Errorf("bluez: unsupported UUID length %d", len(le))
	}
}

func toFlags(props uint8) bluetooth.CharacteristicPermissions {
	var flags bluetooth.CharacteristicPermissions
	if props&gatt.PropRead != 0 {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if props&gatt.PropWrite != 0 {
		flags |= bluetooth.CharacteristicWritePermission
	}
	if props&gatt.PropWriteWithoutResponse != 0 {
		flags |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if props&gatt.PropNotify != 0 {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	if props&gatt.PropIndicate != 0 {
		flags |= bluetooth.CharacteristicIndicatePermission
	}
	return flags
}

var _ hoststack.Stack = (*Stack)(nil)
