package provision

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/wifiprov/netif"
	"github.com/user/wifiprov/proto"
)

type panickingNIC struct {
	netif.Interface
}

func (panickingNIC) Scan(ctx context.Context) ([]netif.AccessPoint, error) {
	panic("driver exploded")
}

type failingNIC struct {
	netif.Interface
}

func (failingNIC) Scan(ctx context.Context) ([]netif.AccessPoint, error) {
	return nil, errors.New("device busy")
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := NewDispatcher(panickingNIC{}, nil)
	resp := d.Dispatch(context.Background(), (&proto.Request{Op: proto.OpStartScan}).Marshal(), func([]byte) {})
	assert.Equal(t, proto.OpStartScan, resp.Op)
	assert.Equal(t, proto.StatusInternalError, resp.Status)
}

func TestDispatchScanFailure(t *testing.T) {
	d := NewDispatcher(failingNIC{}, nil)
	var emitted int
	resp := d.Dispatch(context.Background(), (&proto.Request{Op: proto.OpStartScan}).Marshal(), func([]byte) { emitted++ })
	assert.Equal(t, proto.StatusInternalError, resp.Status)
	assert.Zero(t, emitted)
}

func TestDispatchBadScanParams(t *testing.T) {
	d := NewDispatcher(failingNIC{}, nil)
	// field 10 holds a truncated varint
	req := append((&proto.Request{Op: proto.OpStartScan}).Marshal(), 0x52, 0x01, 0x08)
	resp := d.Dispatch(context.Background(), req, func([]byte) {})
	assert.Equal(t, proto.OpStartScan, resp.Op)
	assert.Equal(t, proto.StatusInternalError, resp.Status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want proto.Status
	}{
		{"nil", nil, proto.StatusSuccess},
		{"decode", opError(proto.OpSetConfig, KindDecode, errors.New("x")), proto.StatusInternalError},
		{"validation", opError(proto.OpSetConfig, KindValidation, errors.New("x")), proto.StatusInternalError},
		{"network", opError(proto.OpStartScan, KindNetwork, errors.New("x")), proto.StatusInternalError},
		{"host", opError(proto.OpGetStatus, KindHost, errors.New("x")), proto.StatusInternalError},
		{"panic", opError(proto.OpGetStatus, KindPanic, errors.New("x")), proto.StatusInternalError},
		{"unsupported", opError(7, KindUnsupported, errors.New("x")), proto.StatusInvalidArgument},
		{"wrapped unsupported", fmt.Errorf("outer: %w", opError(7, KindUnsupported, errors.New("x"))), proto.StatusInvalidArgument},
		{"untyped", errors.New("x"), proto.StatusInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("no such device")
	err := opError(proto.OpStartScan, KindNetwork, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "START_SCAN")
	assert.Contains(t, err.Error(), "network")

	var e *Error
	require.ErrorAs(t, fmt.Errorf("wrap: %w", err), &e)
	assert.Equal(t, KindNetwork, e.Kind)
}

func TestJoinResult(t *testing.T) {
	ok := JoinResult(netif.ConnectResult{SSID: "a", Status: netif.StatusGotIP})
	assert.Equal(t, proto.StateConnected, ok.State)
	assert.Zero(t, ok.Reason)

	failed := JoinResult(netif.ConnectResult{SSID: "a", Status: netif.StatusNoAPFound})
	assert.Equal(t, proto.StateConnectionFailed, failed.State)
	assert.Equal(t, uint32(netif.StatusNoAPFound), failed.Reason)
}
