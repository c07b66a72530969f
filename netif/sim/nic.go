// Package sim is an in-memory Wi-Fi station with a configurable set of
// reachable networks. Profiles can be persisted to a YAML file.
package sim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/netif"
	"github.com/user/wifiprov/proto"
	"github.com/user/wifiprov/wire"
)

// Network is an access point the simulated station can see.
type Network struct {
	AP         netif.AccessPoint
	Passphrase string
	Distance   float64 // meters, drives RSSI when the radio model enables it
	IP         net.IP  // address handed out on join
}

type profileFile struct {
	Profiles []netif.Profile `yaml:"profiles"`
}

// NIC is a simulated station.
type NIC struct {
	radio *wire.Simulator
	path  string

	mu       sync.Mutex
	networks []Network
	profiles []netif.Profile
	status   netif.Status
	ip       net.IP
	handler  func(netif.ConnectResult)
	attempts []string
	joining  bool
}

// New returns a station. Profiles are loaded from and saved to path when it
// is not empty.
func New(config *wire.SimulationConfig, path string) (*NIC, error) {
	if config == nil {
		config = wire.PerfectSimulationConfig()
	}
	n := &NIC{radio: wire.NewSimulator(config), path: path}
	if path != "" {
		if err := n.load(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddNetwork makes a network reachable.
func (n *NIC) AddNetwork(nw Network) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.networks = append(n.networks, nw)
}

// Attempts returns the SSIDs passed to Connect, in order.
func (n *NIC) Attempts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.attempts...)
}

// SetConnected puts the station directly in the connected state.
func (n *NIC) SetConnected(ip net.IP) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status, n.ip = netif.StatusGotIP, ip
}

func (n *NIC) Status() netif.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *NIC) IsConnected() bool {
	return n.Status() == netif.StatusGotIP
}

func (n *NIC) IPv4() net.IP {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != netif.StatusGotIP {
		return nil
	}
	return n.ip.To4()
}

func (n *NIC) Scan(ctx context.Context) ([]netif.AccessPoint, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(n.radio.ScanDelay()):
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	aps := make([]netif.AccessPoint, 0, len(n.networks))
	for _, nw := range n.networks {
		ap := nw.AP
		if n.radio.Config().EnableRSSI {
			ap.RSSI = n.radio.GenerateRSSI(nw.Distance)
		}
		aps = append(aps, ap)
	}
	logger.Debug("netif", "scan found %d access points", len(aps))
	return aps, nil
}

func (n *NIC) Profiles() ([]netif.Profile, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]netif.Profile(nil), n.profiles...), nil
}

func (n *NIC) AddProfile(p netif.Profile) error {
	if p.SSID == "" {
		return errors.New("netif: profile without SSID")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.profiles = netif.MergeProfile(n.profiles, p)
	return n.save()
}

func (n *NIC) SetConnectHandler(fn func(netif.ConnectResult)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = fn
}

// Connect resolves the attempt after the configured join delay. An attempt
// whose delay exceeds timeout never reports, like a station that is stuck
// associating.
func (n *NIC) Connect(ssid string, timeout time.Duration) error {
	n.mu.Lock()
	if n.joining {
		n.mu.Unlock()
		return errors.New("netif: join already in progress")
	}
	var profile *netif.Profile
	for i := range n.profiles {
		if n.profiles[i].SSID == ssid {
			profile = &n.profiles[i]
		}
	}
	if profile == nil {
		n.mu.Unlock()
		return fmt.Errorf("netif: no stored profile for %q", ssid)
	}
	p := *profile
	n.attempts = append(n.attempts, ssid)
	n.joining = true
	n.status = netif.StatusConnecting
	n.ip = nil
	n.mu.Unlock()

	delay := n.radio.JoinDelay()
	if delay > timeout {
		go func() {
			time.Sleep(timeout)
			n.mu.Lock()
			n.joining = false
			n.status = netif.StatusConnectFailed
			n.mu.Unlock()
		}()
		return nil
	}

	go func() {
		time.Sleep(delay)
		n.finish(p)
	}()
	return nil
}

func (n *NIC) finish(p netif.Profile) {
	n.mu.Lock()
	result := netif.ConnectResult{SSID: p.SSID, Status: netif.StatusNoAPFound}
	for _, nw := range n.networks {
		if nw.AP.SSID != p.SSID {
			continue
		}
		if nw.AP.Auth != proto.AuthOpen && nw.Passphrase != p.Passphrase {
			result.Status = netif.StatusWrongPassword
			break
		}
		result.Status = netif.StatusGotIP
		n.ip = nw.IP
		break
	}
	n.status = result.Status
	n.joining = false
	fn := n.handler
	n.mu.Unlock()

	logger.Info("netif", "join %q: %s", p.SSID, result.Status)
	if fn != nil {
		fn(result)
	}
}

func (n *NIC) load() error {
	data, err := os.ReadFile(n.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("netif: read profiles: %w", err)
	}
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("netif: parse %s: %w", n.path, err)
	}
	n.profiles = f.Profiles
	return nil
}

// save must be called with mu held.
func (n *NIC) save() error {
	if n.path == "" {
		return nil
	}
	var f profileFile
	for _, p := range n.profiles {
		if !p.Volatile {
			f.Profiles = append(f.Profiles, p)
		}
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("netif: encode profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(n.path), 0o755); err != nil {
		return fmt.Errorf("netif: create profile dir: %w", err)
	}
	if err := os.WriteFile(n.path, data, 0o600); err != nil {
		return fmt.Errorf("netif: write profiles: %w", err)
	}
	return nil
}

var _ netif.Interface = (*NIC)(nil)
