package provision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/user/wifiprov/credential"
	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/netif"
	"github.com/user/wifiprov/proto"
)

// Default dispatcher timeouts.
const (
	DefaultScanTimeout = 10 * time.Second
	DefaultJoinTimeout = credential.DefaultTimeout
)

// Dispatcher runs provisioning requests against a station interface.
type Dispatcher struct {
	nic       netif.Interface
	connector *credential.Connector

	ScanTimeout time.Duration
	JoinTimeout time.Duration

	// OnJoin receives the outcome of every join started by SET_CONFIG. It
	// may run on any goroutine.
	OnJoin func(netif.ConnectResult)

	joins atomic.Int32
}

// NewDispatcher returns a dispatcher that joins networks through connector.
func NewDispatcher(nic netif.Interface, connector *credential.Connector) *Dispatcher {
	return &Dispatcher{
		nic:         nic,
		connector:   connector,
		ScanTimeout: DefaultScanTimeout,
		JoinTimeout: DefaultJoinTimeout,
	}
}

// Dispatch decodes and runs one request and returns the response for it.
// Scan results are passed to emit, encoded, before Dispatch returns. The
// response always carries the request's op code, or zero when the request
// could not be decoded far enough to find one.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte, emit func([]byte)) (resp *proto.Response) {
	fields, err := proto.DecodeRaw(data)
	if err != nil {
		logger.Warn("dispatch", "undecodable request %x: %v", data, err)
		return &proto.Response{Status: StatusFor(opError(0, KindDecode, err))}
	}

	var op proto.OpCode
	if f, ok := proto.Field(fields, 1); ok {
		op = proto.OpCode(f.Varint)
	}
	resp = &proto.Response{Op: op}

	defer func() {
		if r := recover(); r != nil {
			err := opError(op, KindPanic, fmt.Errorf("%v", r))
			logger.Error("dispatch", "%v", err)
			resp = &proto.Response{Op: op, Status: StatusFor(err)}
		}
	}()

	logger.Debug("dispatch", "request %s (%d bytes)", op, len(data))

	switch op {
	case proto.OpGetStatus:
		var status *proto.DeviceStatus
		status, err = d.getStatus()
		resp.DeviceStatus = status
	case proto.OpStartScan:
		err = d.startScan(ctx, fields, emit)
	case proto.OpStopScan:
		// scans run to completion inside the tick, nothing to stop
	case proto.OpSetConfig:
		err = d.setConfig(fields)
	default:
		err = opError(op, KindUnsupported, errors.New("unknown op code"))
	}

	if err != nil {
		logger.Warn("dispatch", "%v", err)
	}
	resp.Status = StatusFor(err)
	return resp
}

func (d *Dispatcher) getStatus() (*proto.DeviceStatus, error) {
	status := &proto.DeviceStatus{State: connectionState(d.nic.Status())}

	profiles, err := d.nic.Profiles()
	if err != nil {
		return nil, opError(proto.OpGetStatus, KindNetwork, err)
	}
	if len(profiles) > 0 {
		p := profiles[len(profiles)-1]
		info := &proto.WifiInfo{SSID: []byte(p.SSID), Channel: proto.ChannelAny, Auth: p.Auth}
		if mac, err := net.ParseMAC(p.BSSID); err == nil {
			info.BSSID = mac
		}
		status.ProvisioningInfo = info
	}

	if status.State == proto.StateConnected {
		if ip := d.nic.IPv4().To4(); ip != nil {
			status.ConnectionInfo = &proto.ConnectionInfo{IP4: ip}
		}
	}
	logger.DebugJSON("dispatch", "device status", status)
	return status, nil
}

func connectionState(s netif.Status) proto.ConnectionState {
	switch s {
	case netif.StatusGotIP:
		return proto.StateConnected
	case netif.StatusConnecting:
		return proto.StateObtainingIP
	}
	return proto.StateDisconnected
}

func (d *Dispatcher) startScan(ctx context.Context, fields []proto.RawField, emit func([]byte)) error {
	var params proto.ScanParams
	if f, ok := proto.Field(fields, 10); ok {
		if err := params.Unmarshal(f.Bytes); err != nil {
			return opError(proto.OpStartScan, KindDecode, err)
		}
	}

	timeout := d.ScanTimeout
	if params.PeriodMs > 0 {
		timeout = time.Duration(params.PeriodMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	aps, err := d.nic.Scan(ctx)
	if err != nil {
		return opError(proto.OpStartScan, KindNetwork, err)
	}

	sent := 0
	for _, ap := range aps {
		if params.Band != proto.BandAny && ap.Band() != params.Band {
			continue
		}
		info := &proto.WifiInfo{
			SSID:    []byte(ap.SSID),
			BSSID:   ap.BSSID,
			Band:    ap.Band(),
			Channel: uint32(ap.Channel()),
			Auth:    ap.Auth,
		}
		result := &proto.Result{ScanRecord: proto.NewScanRecord(info, ap.RSSI)}
		emit(result.Marshal())
		sent++
	}
	logger.Info("dispatch", "scan found %d access points, reported %d", len(aps), sent)
	return nil
}

func (d *Dispatcher) setConfig(fields []proto.RawField) error {
	f, ok := proto.Field(fields, 11)
	if !ok {
		return opError(proto.OpSetConfig, KindValidation, errors.New("missing wifi config"))
	}
	var cfg proto.WifiConfig
	if err := cfg.Unmarshal(f.Bytes); err != nil {
		return opError(proto.OpSetConfig, KindDecode, err)
	}
	if cfg.Wifi == nil || len(cfg.Wifi.SSID) == 0 {
		return opError(proto.OpSetConfig, KindValidation, errors.New("empty SSID"))
	}

	// The BSSID is not stored so that any access point with the SSID can be
	// joined.
	p := netif.Profile{
		SSID:       string(cfg.Wifi.SSID),
		Auth:       cfg.Wifi.Auth,
		Passphrase: string(cfg.Passphrase),
		Volatile:   cfg.Volatile,
	}
	if err := d.nic.AddProfile(p); err != nil {
		return opError(proto.OpSetConfig, KindNetwork, err)
	}
	logger.Info("dispatch", "stored profile %q (%s)", p.SSID, p.Auth)

	d.joins.Add(1)
	err := d.connector.ConnectAsync(p.SSID, d.JoinTimeout, d.joined)
	switch {
	case errors.Is(err, credential.ErrAttemptInProgress):
		d.joins.Add(-1)
		logger.Warn("dispatch", "join of %q not started: %v", p.SSID, err)
	case err != nil:
		// already reported through joined
		logger.Warn("dispatch", "%v", err)
	}
	return nil
}

func (d *Dispatcher) joined(r netif.ConnectResult) {
	defer d.joins.Add(-1)
	if d.OnJoin != nil {
		d.OnJoin(r)
	}
}

// Joining reports whether a join started by SET_CONFIG has not yet been
// handed to OnJoin.
func (d *Dispatcher) Joining() bool {
	return d.joins.Load() > 0
}

// JoinResult encodes the push sent when a join attempt ends.
func JoinResult(r netif.ConnectResult) *proto.Result {
	if r.Connected() {
		return &proto.Result{State: proto.StateConnected}
	}
	return &proto.Result{State: proto.StateConnectionFailed, Reason: uint32(r.Status)}
}
