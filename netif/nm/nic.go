//go:build linux

// Package nm drives a Wi-Fi device through NetworkManager on the system bus.
package nm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/netif"
	"github.com/user/wifiprov/proto"
)

const (
	nmService      = "org.freedesktop.NetworkManager"
	nmPath         = "/org/freedesktop/NetworkManager"
	nmSettingsPath = "/org/freedesktop/NetworkManager/Settings"

	ifaceNM         = "org.freedesktop.NetworkManager"
	ifaceDevice     = "org.freedesktop.NetworkManager.Device"
	ifaceWireless   = "org.freedesktop.NetworkManager.Device.Wireless"
	ifaceAP         = "org.freedesktop.NetworkManager.AccessPoint"
	ifaceSettings   = "org.freedesktop.NetworkManager.Settings"
	ifaceConnection = "org.freedesktop.NetworkManager.Settings.Connection"
	ifaceIP4Config  = "org.freedesktop.NetworkManager.IP4Config"

	deviceTypeWifi = 2
)

// NMDeviceState values
const (
	stateDisconnected = 30
	statePrepare      = 40
	stateActivated    = 100
	stateFailed       = 120
)

// NMDeviceStateReason values used to classify failures
const (
	reasonNoSecrets    = 7
	reasonSSIDNotFound = 53
)

// Access point flags
const (
	apFlagPrivacy = 0x1
	keyMgmtPSK    = 0x100
	keyMgmt8021X  = 0x200
	keyMgmtSAE    = 0x400
)

// PollInterval is how often device state is sampled while joining or scanning.
var PollInterval = 250 * time.Millisecond

// NIC is a NetworkManager-managed Wi-Fi device.
type NIC struct {
	conn   *dbus.Conn
	device dbus.ObjectPath

	mu      sync.Mutex
	handler func(netif.ConnectResult)
	joining bool
}

// Open finds the Wi-Fi device named ifname, or the first one when ifname is empty.
func Open(ifname string) (*NIC, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system DBus: %w", err)
	}

	var devices []dbus.ObjectPath
	if err := conn.Object(nmService, nmPath).Call(ifaceNM+".GetDevices", 0).Store(&devices); err != nil {
		return nil, fmt.Errorf("nm: list devices: %w", err)
	}

	for _, path := range devices {
		obj := conn.Object(nmService, path)
		var devType uint32
		if err := getProp(obj, ifaceDevice, "DeviceType", &devType); err != nil || devType != deviceTypeWifi {
			continue
		}
		var name string
		if err := getProp(obj, ifaceDevice, "Interface", &name); err != nil {
			continue
		}
		if ifname == "" || ifname == name {
			logger.Debug("netif", "using wifi device %s (%s)", name, path)
			return &NIC{conn: conn, device: path}, nil
		}
	}
	return nil, fmt.Errorf("nm: no wifi device %q", ifname)
}

func (n *NIC) deviceState() (uint32, uint32, error) {
	obj := n.conn.Object(nmService, n.device)
	var state uint32
	if err := getProp(obj, ifaceDevice, "State", &state); err != nil {
		return 0, 0, err
	}
	var reason []interface{}
	v, err := obj.GetProperty(ifaceDevice + ".StateReason")
	if err == nil {
		if err := v.Store(&reason); err == nil && len(reason) == 2 {
			if r, ok := reason[1].(uint32); ok {
				return state, r, nil
			}
		}
	}
	return state, 0, nil
}

func (n *NIC) Status() netif.Status {
	state, _, err := n.deviceState()
	if err != nil {
		logger.Warn("netif", "read device state: %v", err)
		return netif.StatusIdle
	}
	return statusFor(state, 0)
}

func statusFor(state, reason uint32) netif.Status {
	switch {
	case state == stateActivated:
		return netif.StatusGotIP
	case state >= statePrepare && state < stateActivated:
		return netif.StatusConnecting
	case state == stateFailed && reason == reasonNoSecrets:
		return netif.StatusWrongPassword
	case state == stateFailed && reason == reasonSSIDNotFound:
		return netif.StatusNoAPFound
	case state == stateFailed:
		return netif.StatusConnectFailed
	}
	return netif.StatusIdle
}

func (n *NIC) IsConnected() bool {
	return n.Status() == netif.StatusGotIP
}

func (n *NIC) IPv4() net.IP {
	var cfgPath dbus.ObjectPath
	if err := getProp(n.conn.Object(nmService, n.device), ifaceDevice, "Ip4Config", &cfgPath); err != nil || cfgPath == "/" {
		return nil
	}
	var addrs []map[string]dbus.Variant
	if err := getProp(n.conn.Object(nmService, cfgPath), ifaceIP4Config, "AddressData", &addrs); err != nil {
		return nil
	}
	for _, a := range addrs {
		if s, ok := a["address"].Value().(string); ok {
			if ip := net.ParseIP(s).To4(); ip != nil {
				return ip
			}
		}
	}
	return nil
}

// Scan requests a fresh scan and waits for NetworkManager to finish it.
func (n *NIC) Scan(ctx context.Context) ([]netif.AccessPoint, error) {
	obj := n.conn.Object(nmService, n.device)

	var before int64
	_ = getProp(obj, ifaceWireless, "LastScan", &before)
	if err := obj.CallWithContext(ctx, ifaceWireless+".RequestScan", 0, map[string]dbus.Variant{}).Err; err != nil {
		// rate limited scans fail; fall through to the cached list
		logger.Debug("netif", "request scan: %v", err)
	} else {
		n.waitScan(ctx, obj, before)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var paths []dbus.ObjectPath
	if err := obj.CallWithContext(ctx, ifaceWireless+".GetAllAccessPoints", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("nm: list access points: %w", err)
	}

	aps := make([]netif.AccessPoint, 0, len(paths))
	for _, p := range paths {
		ap, err := n.readAP(p)
		if err != nil {
			logger.Debug("netif", "skip access point %s: %v", p, err)
			continue
		}
		aps = append(aps, ap)
	}
	return aps, nil
}

func (n *NIC) waitScan(ctx context.Context, obj dbus.BusObject, before int64) {
	deadline := time.NewTimer(15 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
			var last int64
			if err := getProp(obj, ifaceWireless, "LastScan", &last); err == nil && last != before {
				return
			}
		}
	}
}

func (n *NIC) readAP(path dbus.ObjectPath) (netif.AccessPoint, error) {
	obj := n.conn.Object(nmService, path)
	var (
		ssid                      []byte
		hw                        string
		freq                      uint32
		strength                  byte
		flags, wpaFlags, rsnFlags uint32
	)
	for name, dst := range map[string]interface{}{
		"Ssid": &ssid, "HwAddress": &hw, "Frequency": &freq, "Strength": &strength,
		"Flags": &flags, "WpaFlags": &wpaFlags, "RsnFlags": &rsnFlags,
	} {
		if err := getProp(obj, ifaceAP, name, dst); err != nil {
			return netif.AccessPoint{}, err
		}
	}
	bssid, _ := net.ParseMAC(hw)
	return netif.AccessPoint{
		SSID:      string(ssid),
		BSSID:     bssid,
		Frequency: int(freq),
		Auth:      authFromFlags(flags, wpaFlags, rsnFlags),
		RSSI:      strengthToDBm(strength),
	}, nil
}

func authFromFlags(flags, wpaFlags, rsnFlags uint32) proto.AuthMode {
	switch {
	case rsnFlags&keyMgmt8021X != 0 || wpaFlags&keyMgmt8021X != 0:
		return proto.AuthWPA2Enterprise
	case rsnFlags&keyMgmtSAE != 0:
		return proto.AuthWPA3PSK
	case rsnFlags&keyMgmtPSK != 0 && wpaFlags&keyMgmtPSK != 0:
		return proto.AuthWPAWPA2PSK
	case rsnFlags&keyMgmtPSK != 0:
		return proto.AuthWPA2PSK
	case wpaFlags&keyMgmtPSK != 0:
		return proto.AuthWPAPSK
	case flags&apFlagPrivacy != 0:
		return proto.AuthWEP
	}
	return proto.AuthOpen
}

// strengthToDBm maps NetworkManager's 0-100 quality to an approximate dBm.
func strengthToDBm(strength byte) int {
	if strength > 100 {
		strength = 100
	}
	return int(strength)/2 - 100
}

type connectionSettings map[string]map[string]dbus.Variant

func (n *NIC) connections() (map[dbus.ObjectPath]connectionSettings, []dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	if err := n.conn.Object(nmService, nmSettingsPath).Call(ifaceSettings+".ListConnections", 0).Store(&paths); err != nil {
		return nil, nil, fmt.Errorf("nm: list connections: %w", err)
	}
	out := make(map[dbus.ObjectPath]connectionSettings, len(paths))
	var wifi []dbus.ObjectPath
	for _, p := range paths {
		var s connectionSettings
		if err := n.conn.Object(nmService, p).Call(ifaceConnection+".GetSettings", 0).Store(&s); err != nil {
			continue
		}
		if t, _ := s["connection"]["type"].Value().(string); t != "802-11-wireless" {
			continue
		}
		out[p] = s
		wifi = append(wifi, p)
	}
	return out, wifi, nil
}

func (n *NIC) Profiles() ([]netif.Profile, error) {
	all, order, err := n.connections()
	if err != nil {
		return nil, err
	}
	profiles := make([]netif.Profile, 0, len(order))
	for _, p := range order {
		profiles = append(profiles, profileFromSettings(all[p]))
	}
	return profiles, nil
}

func profileFromSettings(s connectionSettings) netif.Profile {
	ssid, _ := s["802-11-wireless"]["ssid"].Value().([]byte)
	p := netif.Profile{SSID: string(ssid)}
	if bssid, ok := s["802-11-wireless"]["bssid"].Value().([]byte); ok && len(bssid) == 6 {
		p.BSSID = net.HardwareAddr(bssid).String()
	}
	sec, ok := s["802-11-wireless-security"]
	if !ok {
		return p
	}
	switch mgmt, _ := sec["key-mgmt"].Value().(string); mgmt {
	case "sae":
		p.Auth = proto.AuthWPA3PSK
	case "wpa-psk":
		p.Auth = proto.AuthWPA2PSK
	case "wpa-eap":
		p.Auth = proto.AuthWPA2Enterprise
	case "none":
		p.Auth = proto.AuthWEP
	}
	return p
}

// AddProfile replaces any connection for the same SSID with a new one.
func (n *NIC) AddProfile(p netif.Profile) error {
	settings, err := settingsFor(p)
	if err != nil {
		return err
	}

	all, order, err := n.connections()
	if err != nil {
		return err
	}
	for _, path := range order {
		if profileFromSettings(all[path]).SSID == p.SSID {
			if err := n.conn.Object(nmService, path).Call(ifaceConnection+".Delete", 0).Err; err != nil {
				return fmt.Errorf("nm: delete old profile for %q: %w", p.SSID, err)
			}
		}
	}

	method := ifaceSettings + ".AddConnection"
	if p.Volatile {
		method = ifaceSettings + ".AddConnectionUnsaved"
	}
	var created dbus.ObjectPath
	if err := n.conn.Object(nmService, nmSettingsPath).Call(method, 0, settings).Store(&created); err != nil {
		return fmt.Errorf("nm: add profile for %q: %w", p.SSID, err)
	}
	logger.Info("netif", "stored profile %q as %s", p.SSID, created)
	return nil
}

func settingsFor(p netif.Profile) (connectionSettings, error) {
	if p.SSID == "" {
		return nil, errors.New("nm: profile without SSID")
	}
	wireless := map[string]dbus.Variant{
		"ssid": dbus.MakeVariant([]byte(p.SSID)),
		"mode": dbus.MakeVariant("infrastructure"),
	}
	if p.BSSID != "" {
		mac, err := net.ParseMAC(p.BSSID)
		if err != nil {
			return nil, fmt.Errorf("nm: bssid: %w", err)
		}
		wireless["bssid"] = dbus.MakeVariant([]byte(mac))
	}

	s := connectionSettings{
		"connection": {
			"id":          dbus.MakeVariant(p.SSID),
			"uuid":        dbus.MakeVariant(uuid.NewString()),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(true),
		},
		"802-11-wireless": wireless,
		"ipv4":            {"method": dbus.MakeVariant("auto")},
		"ipv6":            {"method": dbus.MakeVariant("auto")},
	}

	switch p.Auth {
	case proto.AuthOpen:
	case proto.AuthWEP:
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("none"),
			"wep-key0": dbus.MakeVariant(p.Passphrase),
		}
	case proto.AuthWPA3PSK:
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("sae"),
			"psk":      dbus.MakeVariant(p.Passphrase),
		}
	case proto.AuthWPA2Enterprise:
		return nil, fmt.Errorf("nm: %s profiles are not supported", p.Auth)
	default:
		psk, err := DerivePSK(p.SSID, p.Passphrase)
		if err != nil {
			return nil, err
		}
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(psk),
		}
	}
	return s, nil
}

func (n *NIC) SetConnectHandler(fn func(netif.ConnectResult)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = fn
}

// Connect activates the stored connection for ssid and reports the outcome
// once the device settles or timeout passes.
func (n *NIC) Connect(ssid string, timeout time.Duration) error {
	all, order, err := n.connections()
	if err != nil {
		return err
	}
	var target dbus.ObjectPath
	for _, path := range order {
		if profileFromSettings(all[path]).SSID == ssid {
			target = path
		}
	}
	if target == "" {
		return fmt.Errorf("nm: no stored profile for %q", ssid)
	}

	n.mu.Lock()
	if n.joining {
		n.mu.Unlock()
		return errors.New("nm: join already in progress")
	}
	n.joining = true
	n.mu.Unlock()

	var active dbus.ObjectPath
	err = n.conn.Object(nmService, nmPath).Call(ifaceNM+".ActivateConnection", 0, target, n.device, dbus.ObjectPath("/")).Store(&active)
	if err != nil {
		n.mu.Lock()
		n.joining = false
		n.mu.Unlock()
		return fmt.Errorf("nm: activate %q: %w", ssid, err)
	}

	go n.watch(ssid, timeout)
	return nil
}

func (n *NIC) watch(ssid string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	tick := time.NewTicker(PollInterval)
	defer tick.Stop()

	result := netif.ConnectResult{SSID: ssid, Status: netif.StatusConnectFailed}
	seenActivating := false
loop:
	for {
		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			break loop
		case <-tick.C:
			state, reason, err := n.deviceState()
			if err != nil {
				result.Err = err
				break loop
			}
			if state >= statePrepare && state < stateActivated {
				seenActivating = true
			}
			if state == stateActivated || state == stateFailed || (seenActivating && state <= stateDisconnected) {
				result.Status = statusFor(state, reason)
				break loop
			}
		}
	}

	n.mu.Lock()
	n.joining = false
	fn := n.handler
	n.mu.Unlock()

	logger.Info("netif", "join %q: %s", ssid, result.Status)
	if fn != nil {
		fn(result)
	}
}

func getProp(obj dbus.BusObject, iface, name string, dst interface{}) error {
	v, err := obj.GetProperty(iface + "." + name)
	if err != nil {
		return err
	}
	return v.Store(dst)
}

var _ netif.Interface = (*NIC)(nil)
