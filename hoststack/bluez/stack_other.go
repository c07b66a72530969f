//go:build !linux

package bluez

import (
	"errors"

	"github.com/user/wifiprov/hoststack"
)

// Stack is unavailable off Linux.
type Stack struct {
	hoststack.Stack
}

// Open fails on platforms without BlueZ.
func Open() (*Stack, error) {
	return nil, errors.New("bluez: only supported on linux")
}
