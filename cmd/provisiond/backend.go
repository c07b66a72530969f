package main

import (
	"fmt"
	"net"

	"github.com/user/wifiprov/config"
	"github.com/user/wifiprov/hoststack"
	"github.com/user/wifiprov/hoststack/bluez"
	"github.com/user/wifiprov/hoststack/sim"
	"github.com/user/wifiprov/netif"
	"github.com/user/wifiprov/netif/nm"
	netsim "github.com/user/wifiprov/netif/sim"
	"github.com/user/wifiprov/proto"
	"github.com/user/wifiprov/util"
	"github.com/user/wifiprov/wire"
)

// demoNetworks are visible to the simulated station.
var demoNetworks = []netsim.Network{
	{
		AP:         netif.AccessPoint{SSID: "HomeNet", BSSID: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, Frequency: 2437, Auth: proto.AuthWPA2PSK},
		Passphrase: "secret123",
		Distance:   2,
		IP:         net.IPv4(192, 168, 1, 20),
	},
	{
		AP:       netif.AccessPoint{SSID: "Guest", BSSID: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}, Frequency: 5180, Auth: proto.AuthOpen},
		Distance: 8,
		IP:       net.IPv4(10, 10, 0, 5),
	},
}

func openNIC(c config.Config) (netif.Interface, error) {
	switch c.Backend {
	case config.BackendBlueZ:
		return nm.Open(c.Interface)
	default:
		if err := util.EnsureDir(c.DataDir); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		nic, err := netsim.New(wire.DefaultSimulationConfig(), c.ProfilePath())
		if err != nil {
			return nil, err
		}
		for _, nw := range demoNetworks {
			nic.AddNetwork(nw)
		}
		return nic, nil
	}
}

func openStack(c config.Config) (hoststack.Stack, error) {
	switch c.Backend {
	case config.BackendBlueZ:
		return bluez.Open()
	default:
		return sim.New(wire.DefaultSimulationConfig()), nil
	}
}
