package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPacketLoss_Rate checks the loss rate over many draws
func TestPacketLoss_Rate(t *testing.T) {
	config := DefaultSimulationConfig()
	config.PacketLossRate = 0.20
	config.Deterministic = true
	config.Seed = 42
	sim := NewSimulator(config)

	lost := 0
	const draws = 10000
	for i := 0; i < draws; i++ {
		if !sim.ShouldPacketSucceed() {
			lost++
		}
	}
	assert.InDelta(t, 0.20, float64(lost)/draws, 0.02)
}

func TestPacketLoss_PerfectNeverDrops(t *testing.T) {
	sim := NewSimulator(PerfectSimulationConfig())
	for i := 0; i < 1000; i++ {
		assert.True(t, sim.ShouldPacketSucceed())
	}
}

func TestDeterministicSeedRepeats(t *testing.T) {
	config := DefaultSimulationConfig()
	config.Deterministic = true
	config.Seed = 7

	a, b := NewSimulator(config), NewSimulator(config)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.ShouldPacketSucceed(), b.ShouldPacketSucceed())
		assert.Equal(t, a.GenerateRSSI(3), b.GenerateRSSI(3))
		assert.Equal(t, a.ScanDelay(), b.ScanDelay())
	}
}

func TestGenerateRSSI(t *testing.T) {
	sim := NewSimulator(PerfectSimulationConfig())

	assert.Equal(t, -40, sim.GenerateRSSI(0.5), "closer than 1m counts as 1m")
	assert.Equal(t, -40, sim.GenerateRSSI(1))
	assert.Equal(t, -60, sim.GenerateRSSI(10))
	assert.Equal(t, -100, sim.GenerateRSSI(1e6), "clamped at -100")

	config := DefaultSimulationConfig()
	config.Deterministic = true
	noisy := NewSimulator(config)
	for i := 0; i < 100; i++ {
		rssi := noisy.GenerateRSSI(1)
		assert.GreaterOrEqual(t, rssi, -46)
		assert.LessOrEqual(t, rssi, -34)
	}
}

func TestNegotiatedMTU(t *testing.T) {
	sim := NewSimulator(DefaultSimulationConfig())

	tests := []struct {
		local, peer, want int
	}{
		{185, 247, 185},
		{517, 600, 512},
		{185, 10, 23},
		{23, 23, 23},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sim.NegotiatedMTU(tt.local, tt.peer))
	}
	assert.Equal(t, 20, MaxValueLen(23))
}

func TestScanAndJoinDelays(t *testing.T) {
	config := DefaultSimulationConfig()
	config.Deterministic = true
	sim := NewSimulator(config)

	for i := 0; i < 20; i++ {
		d := sim.ScanDelay()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.Less(t, d, 2500*time.Millisecond)
	}
	assert.Equal(t, 1500*time.Millisecond, sim.JoinDelay())
	assert.Zero(t, NewSimulator(PerfectSimulationConfig()).ScanDelay())
}
