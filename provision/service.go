// Package provision serves the Wi-Fi provisioning GATT service. Host stack
// events are latched by the Service and acted on from its poll loop.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/wifiprov/credential"
	"github.com/user/wifiprov/hoststack"
	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/netif"
	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/proto"
	"github.com/user/wifiprov/wire/advertising"
	"github.com/user/wifiprov/wire/att"
	"github.com/user/wifiprov/wire/gatt"
)

// Provisioning service and characteristic UUIDs, little-endian.
var (
	ServiceUUID      = gatt.MustParseUUID("14387800-130c-49e7-b877-2881c89cb258")
	InformationUUID  = gatt.MustParseUUID("14387801-130c-49e7-b877-2881c89cb258")
	ControlPointUUID = gatt.MustParseUUID("14387802-130c-49e7-b877-2881c89cb258")
	DataUUID         = gatt.MustParseUUID("14387803-130c-49e7-b877-2881c89cb258")
)

// Defaults for Config.
const (
	DefaultName         = "mpy"
	DefaultRevision     = 1
	DefaultAdvInterval  = 100 * time.Millisecond
	DefaultPollInterval = 100 * time.Millisecond
)

// Config controls a Service.
type Config struct {
	Name        string
	Appearance  int16
	Revision    byte
	AdvInterval time.Duration

	PollInterval time.Duration
	ScanTimeout  time.Duration
	JoinTimeout  time.Duration

	Security pairing.Security

	// TeardownOnConnected ends Run once the station has an address and the
	// outcome of any join started over the air has been pushed.
	TeardownOnConnected bool
	// SkipIfConnected makes Run return ErrAlreadyConnected without
	// advertising when the station is already connected.
	SkipIfConnected bool
}

// DefaultConfig returns the configuration used by provisiond.
func DefaultConfig() Config {
	return Config{
		Name:                DefaultName,
		Revision:            DefaultRevision,
		AdvInterval:         DefaultAdvInterval,
		PollInterval:        DefaultPollInterval,
		ScanTimeout:         DefaultScanTimeout,
		JoinTimeout:         DefaultJoinTimeout,
		Security:            pairing.DefaultSecurity,
		TeardownOnConnected: true,
		SkipIfConnected:     true,
	}
}

type pendingRequest struct {
	conn  uint16
	value []byte
}

// Service owns the provisioning characteristics and the connections to them.
type Service struct {
	cfg        Config
	stack      hoststack.Stack
	nic        netif.Interface
	dispatcher *Dispatcher
	pairing    *pairing.Machine
	blink      *blinker

	// WriteLocal on the data characteristic already reaches every client
	broadcast bool

	infoHandle    uint16
	controlHandle uint16
	dataHandle    uint16

	request latch[pendingRequest]
	passkey latch[pairing.Event]

	mu          sync.Mutex
	conns       map[uint16]hoststack.Connection
	pushes      [][]byte
	readvertise bool
	advertising bool
	ended       bool
}

// Option customizes a Service.
type Option func(*Service)

// WithIndicator drives ind from the poll loop instead of the log.
func WithIndicator(ind Indicator) Option {
	return func(s *Service) {
		s.blink = newBlinker(ind, s.cfg.PollInterval)
	}
}

// WithPairing replaces the default pairing machine.
func WithPairing(m *pairing.Machine) Option {
	return func(s *Service) {
		s.pairing = m
	}
}

// New registers the provisioning service on stack and takes over its event
// handler and nic's connect handler.
func New(stack hoststack.Stack, nic netif.Interface, cfg Config, opts ...Option) (*Service, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.AdvInterval <= 0 {
		cfg.AdvInterval = DefaultAdvInterval
	}

	s := &Service{
		cfg:     cfg,
		stack:   stack,
		nic:     nic,
		pairing: pairing.NewMachine(stack, nil, nil),
		conns:   make(map[uint16]hoststack.Connection),
	}
	s.blink = newBlinker(&LogIndicator{}, cfg.PollInterval)

	s.dispatcher = NewDispatcher(nic, credential.New(nic))
	if cfg.ScanTimeout > 0 {
		s.dispatcher.ScanTimeout = cfg.ScanTimeout
	}
	if cfg.JoinTimeout > 0 {
		s.dispatcher.JoinTimeout = cfg.JoinTimeout
	}
	s.dispatcher.OnJoin = s.queueJoinResult

	for _, opt := range opts {
		opt(s)
	}

	if err := stack.ConfigureSecurity(cfg.Security); err != nil {
		return nil, fmt.Errorf("provision: configure security: %w", err)
	}

	info, err := stack.RegisterService(gatt.Service{
		UUID:    ServiceUUID,
		Primary: true,
		Characteristics: []gatt.Characteristic{
			{UUID: InformationUUID, Properties: gatt.PropRead},
			{
				UUID:        ControlPointUUID,
				Properties:  gatt.PropWrite | gatt.PropIndicate,
				Descriptors: []gatt.Descriptor{gatt.UserDescription("Control Point")},
			},
			{
				UUID:        DataUUID,
				Properties:  gatt.PropNotify,
				Descriptors: []gatt.Descriptor{gatt.UserDescription("Data")},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("provision: register service: %w", err)
	}
	if s.infoHandle, err = gatt.FindCharacteristicHandle(info, InformationUUID); err != nil {
		return nil, err
	}
	if s.controlHandle, err = gatt.FindCharacteristicHandle(info, ControlPointUUID); err != nil {
		return nil, err
	}
	if s.dataHandle, err = gatt.FindCharacteristicHandle(info, DataUUID); err != nil {
		return nil, err
	}

	version := &proto.Info{Version: proto.ProtocolVersion}
	if err := stack.WriteLocal(s.infoHandle, version.Marshal()); err != nil {
		return nil, fmt.Errorf("provision: write information: %w", err)
	}

	if wn, ok := stack.(hoststack.WriteNotifier); ok {
		s.broadcast = wn.NotifiesOnWrite()
	}

	stack.SetHandler(s)
	logger.Info("provision", "service registered (info 0x%04X, control 0x%04X, data 0x%04X)",
		s.infoHandle, s.controlHandle, s.dataHandle)
	return s, nil
}

// Handles returns the value handles of the Information, Control Point and
// Data characteristics.
func (s *Service) Handles() (info, control, data uint16) {
	return s.infoHandle, s.controlHandle, s.dataHandle
}

// Dispatcher returns the dispatcher serving Control Point requests.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// AdvertisingData returns the advertising payload and scan response for the
// current station state.
func (s *Service) AdvertisingData() (data, scanResponse []byte, err error) {
	data = advertising.Build(advertising.Fields{
		Name:       s.cfg.Name,
		Services:   [][]byte{ServiceUUID},
		Appearance: s.cfg.Appearance,
	})
	if !advertising.Fits(data) {
		return nil, nil, fmt.Errorf("provision: advertising data is %d bytes", len(data))
	}

	var flags byte
	if profiles, err := s.nic.Profiles(); err == nil && len(profiles) > 0 {
		flags |= advertising.StatusProvisioned
	}
	if s.nic.IsConnected() {
		flags |= advertising.StatusWifiConnected
	}
	scanResponse, err = advertising.ScanResponse(ServiceUUID, s.cfg.Revision, flags)
	return data, scanResponse, err
}

// Advertise starts advertising the provisioning service.
func (s *Service) Advertise() error {
	data, rsp, err := s.AdvertisingData()
	if err != nil {
		return err
	}
	if err := s.stack.Advertise(hoststack.Advertisement{
		Interval:     s.cfg.AdvInterval,
		Data:         data,
		ScanResponse: rsp,
	}); err != nil {
		return fmt.Errorf("provision: advertise: %w", err)
	}

	s.mu.Lock()
	s.advertising = true
	s.readvertise = false
	s.mu.Unlock()
	logger.Info("provision", "advertising as %q", s.cfg.Name)
	return nil
}

// End stops advertising. Disconnects no longer restart it.
func (s *Service) End() error {
	s.mu.Lock()
	s.ended = true
	s.advertising = false
	s.readvertise = false
	s.mu.Unlock()
	s.blink.out.Set(false)

	if err := s.stack.StopAdvertising(); err != nil {
		return fmt.Errorf("provision: stop advertising: %w", err)
	}
	logger.Info("provision", "service ended")
	return nil
}

// Connections returns the connected peers.
func (s *Service) Connections() []hoststack.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hoststack.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Service) OnConnect(c hoststack.Connection) {
	s.mu.Lock()
	s.conns[c.Handle] = c
	// stacks stop advertising on connect
	s.advertising = false
	s.mu.Unlock()
	logger.Info("provision", "connected %s (handle %d)", c.Addr, c.Handle)
}

func (s *Service) OnDisconnect(c hoststack.Connection) {
	s.mu.Lock()
	delete(s.conns, c.Handle)
	if !s.ended {
		s.readvertise = true
	}
	s.mu.Unlock()

	if r, gen, ok := s.request.current(); ok && r.conn == c.Handle && s.request.clearIf(gen) {
		logger.Debug("provision", "dropped pending request of handle %d", c.Handle)
	}
	logger.Info("provision", "disconnected %s (handle %d)", c.Addr, c.Handle)
}

// OnWrite latches Control Point writes. Only one request may be pending.
func (s *Service) OnWrite(conn uint16, attr uint16, value []byte) uint8 {
	if attr != s.controlHandle {
		return 0
	}
	if !s.request.offer(pendingRequest{conn: conn, value: append([]byte(nil), value...)}) {
		logger.Warn("provision", "handle %d wrote while a request is pending", conn)
		return att.ErrProcedureAlreadyInProgress
	}
	logger.Trace("provision", "request from handle %d: %x", conn, value)
	return 0
}

func (s *Service) OnPasskeyAction(ev pairing.Event) {
	s.passkey.put(ev)
}

func (s *Service) queueJoinResult(r netif.ConnectResult) {
	payload := JoinResult(r).Marshal()
	s.mu.Lock()
	s.pushes = append(s.pushes, payload)
	s.mu.Unlock()
}

// Tick runs one iteration of the poll loop and reports whether the service
// is done.
func (s *Service) Tick(ctx context.Context) bool {
	s.mu.Lock()
	readvertise := s.readvertise && !s.ended
	s.mu.Unlock()
	if readvertise {
		if err := s.Advertise(); err != nil {
			logger.Error("provision", "%v", err)
		}
	}

	if ev, ok := s.passkey.take(); ok {
		if err := s.pairing.Step(ctx, ev); err != nil {
			logger.Error("provision", "pairing: %v", err)
		}
	}

	// The requester may disconnect while serve runs and another client may
	// latch a new request; only this one is cleared.
	if r, gen, ok := s.request.current(); ok {
		s.serve(ctx, r)
		s.request.clearIf(gen)
	}

	s.flushPushes()

	s.mu.Lock()
	connected := len(s.conns) > 0
	advertising := s.advertising
	s.mu.Unlock()
	s.blink.update(connected, advertising)

	return s.cfg.TeardownOnConnected && s.settled() && s.nic.IsConnected()
}

// settled reports whether every join result has been pushed. Joining is
// read first since a finishing join queues its push before it clears.
func (s *Service) settled() bool {
	if s.dispatcher.Joining() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushes) == 0
}

func (s *Service) serve(ctx context.Context, r pendingRequest) {
	emit := func(payload []byte) {
		if err := s.stack.Notify(r.conn, s.dataHandle, payload); err != nil {
			logger.Warn("provision", "notify handle %d: %v", r.conn, err)
		}
	}
	resp := s.dispatcher.Dispatch(ctx, r.value, emit)
	logger.Debug("provision", "response %s %s", resp.Op, resp.Status)
	if err := s.stack.Indicate(r.conn, s.controlHandle, resp.Marshal()); err != nil {
		logger.Warn("provision", "indicate handle %d: %v", r.conn, err)
	}
}

func (s *Service) flushPushes() {
	s.mu.Lock()
	pushes := s.pushes
	s.pushes = nil
	conns := make([]uint16, 0, len(s.conns))
	for h := range s.conns {
		conns = append(conns, h)
	}
	s.mu.Unlock()

	for _, payload := range pushes {
		if err := s.stack.WriteLocal(s.dataHandle, payload); err != nil {
			logger.Warn("provision", "update data: %v", err)
		}
		if s.broadcast {
			continue
		}
		for _, conn := range conns {
			if err := s.stack.Notify(conn, s.dataHandle, payload); err != nil {
				logger.Warn("provision", "notify handle %d: %v", conn, err)
			}
		}
	}
}

// Run advertises and polls until ctx is done or, with TeardownOnConnected,
// the station connects. Advertising is stopped on return.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.SkipIfConnected && s.nic.IsConnected() {
		logger.Info("provision", "station already connected, not provisioning")
		return ErrAlreadyConnected
	}
	if err := s.Advertise(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if s.Tick(ctx) {
			logger.Info("provision", "station connected, tearing down")
			return s.End()
		}
		select {
		case <-ctx.Done():
			err := s.End()
			if errors.Is(ctx.Err(), context.Canceled) {
				return err
			}
			return errors.Join(ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

var _ hoststack.EventHandler = (*Service)(nil)
