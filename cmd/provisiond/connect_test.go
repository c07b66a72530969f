package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectedMessage(t *testing.T) {
	ip := net.IPv4(192, 168, 1, 20)
	assert.Equal(t, "Connected to Guest (192.168.1.20)", connectedMessage([]string{"HomeNet", "Guest"}, ip))
	assert.Equal(t, "Already connected (192.168.1.20)", connectedMessage(nil, ip))
}
