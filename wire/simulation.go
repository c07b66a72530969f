// Package wire holds the radio model shared by the simulated host stack and
// the simulated network interface.
package wire

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of simulated radio behavior
type SimulationConfig struct {
	// ATT MTU limits; notification payloads are capped at MTU-3
	MinMTU     int // Default: 23 bytes (BLE 4.0 minimum)
	MaxMTU     int // Default: 512 bytes
	DefaultMTU int // Default: 185 bytes (common negotiated value)

	// Packet loss on notifications and indications
	PacketLossRate float64 // Default: 0.015
	MaxRetries     int     // Default: 3 (indications only, they are acknowledged)

	// Signal strength of simulated access points
	EnableRSSI   bool
	BaseRSSI     int // Default: -40 dBm at 1m
	RSSIVariance int // Default: 6 dBm

	// Wi-Fi scan and join timing (milliseconds)
	MinScanDelay int
	MaxScanDelay int
	JoinDelay    int

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns realistic parameters
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		MinMTU:     23,
		MaxMTU:     512,
		DefaultMTU: 185,

		PacketLossRate: 0.015,
		MaxRetries:     3,

		EnableRSSI:   true,
		BaseRSSI:     -40,
		RSSIVariance: 6,

		MinScanDelay: 800,
		MaxScanDelay: 2500,
		JoinDelay:    1500,
	}
}

// PerfectSimulationConfig returns a lossless, instant, reproducible config for tests
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.PacketLossRate = 0
	cfg.EnableRSSI = false
	cfg.MinScanDelay = 0
	cfg.MaxScanDelay = 0
	cfg.JoinDelay = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator draws simulated radio outcomes. Safe for concurrent use.
type Simulator struct {
	config *SimulationConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a new simulator; nil selects DefaultSimulationConfig
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	seed := config.Seed
	if !config.Deterministic {
		seed = time.Now().UnixNano()
	}

	return &Simulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Config returns the parameters in use
func (s *Simulator) Config() *SimulationConfig {
	return s.config
}

// ShouldPacketSucceed returns true if a transmission gets through
func (s *Simulator) ShouldPacketSucceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() >= s.config.PacketLossRate
}

// GenerateRSSI returns a signal strength in dBm for an emitter at distance
// meters, clamped to -100..-20.
func (s *Simulator) GenerateRSSI(distance float64) int {
	if distance < 1 {
		distance = 1
	}
	// Free space path loss, ~20dB per 10x distance
	rssi := float64(s.config.BaseRSSI) - 20*math.Log10(distance)

	if s.config.EnableRSSI && s.config.RSSIVariance > 0 {
		s.mu.Lock()
		rssi += float64(s.rng.Intn(s.config.RSSIVariance*2) - s.config.RSSIVariance)
		s.mu.Unlock()
	}

	if rssi < -100 {
		rssi = -100
	} else if rssi > -20 {
		rssi = -20
	}
	return int(rssi)
}

// NegotiatedMTU returns the smaller of the two proposals, clamped to the configured range
func (s *Simulator) NegotiatedMTU(localMTU, peerMTU int) int {
	mtu := localMTU
	if peerMTU < mtu {
		mtu = peerMTU
	}

	if mtu < s.config.MinMTU {
		mtu = s.config.MinMTU
	} else if mtu > s.config.MaxMTU {
		mtu = s.config.MaxMTU
	}
	return mtu
}

// MaxValueLen is the largest attribute value a notification can carry at mtu
func MaxValueLen(mtu int) int {
	return mtu - 3
}

// ScanDelay returns how long a simulated Wi-Fi scan takes
func (s *Simulator) ScanDelay() time.Duration {
	return s.between(s.config.MinScanDelay, s.config.MaxScanDelay)
}

// JoinDelay returns how long a simulated join takes to resolve
func (s *Simulator) JoinDelay() time.Duration {
	return time.Duration(s.config.JoinDelay) * time.Millisecond
}

func (s *Simulator) between(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	s.mu.Lock()
	delay := minMs + s.rng.Intn(maxMs-minMs)
	s.mu.Unlock()
	return time.Duration(delay) * time.Millisecond
}
