//go:build !linux

package nm

import (
	"errors"

	"github.com/user/wifiprov/netif"
)

// NIC is unavailable off Linux.
type NIC struct {
	netif.Interface
}

// Open fails on platforms without NetworkManager.
func Open(ifname string) (*NIC, error) {
	return nil, errors.New("nm: only supported on linux")
}
