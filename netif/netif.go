// Package netif defines the station-mode network interface used to scan for
// access points, store credentials and join networks.
package netif

import (
	"context"
	"net"
	"time"

	"github.com/user/wifiprov/proto"
)

// Status of the station link.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusGotIP
	StatusWrongPassword
	StatusNoAPFound
	StatusConnectFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusGotIP:
		return "got-ip"
	case StatusWrongPassword:
		return "wrong-password"
	case StatusNoAPFound:
		return "no-ap-found"
	case StatusConnectFailed:
		return "connect-failed"
	}
	return "unknown"
}

// AccessPoint is one scan result.
type AccessPoint struct {
	SSID      string
	BSSID     net.HardwareAddr
	Frequency int // MHz
	Auth      proto.AuthMode
	RSSI      int // dBm, negative
}

// Channel derives the channel number from Frequency.
func (ap AccessPoint) Channel() int {
	return ChannelFromFrequency(ap.Frequency)
}

// Band derives the band from Frequency.
func (ap AccessPoint) Band() proto.Band {
	return BandFromFrequency(ap.Frequency)
}

// Profile is a stored credential. Profiles are keyed by SSID.
type Profile struct {
	SSID       string         `yaml:"ssid"`
	BSSID      string         `yaml:"bssid,omitempty"`
	Auth       proto.AuthMode `yaml:"auth"`
	Passphrase string         `yaml:"passphrase,omitempty"`
	// Volatile profiles are kept in memory only.
	Volatile bool `yaml:"-"`
}

// ConnectResult is reported once per Connect call.
type ConnectResult struct {
	SSID   string
	Status Status
	Err    error
}

// Connected reports whether the attempt ended with an address.
func (r ConnectResult) Connected() bool {
	return r.Status == StatusGotIP
}

// Interface is a Wi-Fi station.
type Interface interface {
	Status() Status
	IsConnected() bool
	// IPv4 returns the station address, or nil when not connected.
	IPv4() net.IP

	Scan(ctx context.Context) ([]AccessPoint, error)

	// Profiles returns stored credentials, oldest first.
	Profiles() ([]Profile, error)
	// AddProfile stores p, replacing and moving to the end any profile
	// with the same SSID.
	AddProfile(p Profile) error

	// Connect starts joining a stored profile. The outcome is delivered to
	// the connect handler; timeout bounds how long the interface tries.
	Connect(ssid string, timeout time.Duration) error
	SetConnectHandler(fn func(ConnectResult))
}

// ChannelFromFrequency maps a centre frequency in MHz to a channel number,
// or 0 when the frequency is outside the 2.4 and 5 GHz bands.
func ChannelFromFrequency(mhz int) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz < 2484:
		return (mhz - 2407) / 5
	case mhz >= 5000 && mhz <= 5900:
		return (mhz - 5000) / 5
	}
	return 0
}

// BandFromFrequency maps a frequency in MHz to its band.
func BandFromFrequency(mhz int) proto.Band {
	switch {
	case mhz >= 2400 && mhz < 2500:
		return proto.Band2G4
	case mhz >= 5000 && mhz <= 5900:
		return proto.Band5G
	}
	return proto.BandAny
}

// FrequencyFromChannel is the inverse of ChannelFromFrequency.
func FrequencyFromChannel(channel int) int {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return 2407 + channel*5
	case channel >= 32 && channel <= 177:
		return 5000 + channel*5
	}
	return 0
}

// MergeProfile applies the AddProfile replacement rule to list.
func MergeProfile(list []Profile, p Profile) []Profile {
	out := make([]Profile, 0, len(list)+1)
	for _, existing := range list {
		if existing.SSID != p.SSID {
			out = append(out, existing)
		}
	}
	return append(out, p)
}
