// Package credential joins stored Wi-Fi profiles, one attempt at a time.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/netif"
)

var (
	ErrAttemptInProgress = errors.New("credential: connect attempt already in progress")
	ErrAlreadyConnected  = errors.New("credential: already connected")
	ErrTimeout           = errors.New("credential: no result before timeout")
	ErrNoProfiles        = errors.New("credential: no stored profiles")
)

// DefaultTimeout bounds a single attempt when callers pass zero.
const DefaultTimeout = 10 * time.Second

// DefaultGrace is added to the attempt timeout before the connector gives up
// on hearing from the interface.
const DefaultGrace = 2 * time.Second

// State of the connector.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type attempt struct {
	ssid  string
	cb    func(netif.ConnectResult)
	timer *time.Timer
}

// Connector owns the connect handler of a netif.Interface.
type Connector struct {
	nic   netif.Interface
	Grace time.Duration

	mu      sync.Mutex
	state   State
	current *attempt
	last    netif.ConnectResult
}

// New takes over nic's connect handler.
func New(nic netif.Interface) *Connector {
	c := &Connector{nic: nic, Grace: DefaultGrace}
	nic.SetConnectHandler(c.onResult)
	return c
}

// State returns the current state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Last returns the result of the most recent finished attempt.
func (c *Connector) Last() netif.ConnectResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ConnectAsync starts joining ssid. cb, if not nil, runs exactly once with the
// outcome, on the interface's goroutine or a timer goroutine. If the
// interface refuses to start, cb runs before ConnectAsync returns the error.
func (c *Connector) ConnectAsync(ssid string, timeout time.Duration, cb func(netif.ConnectResult)) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAttemptInProgress
	}
	a := &attempt{ssid: ssid, cb: cb}
	a.timer = time.AfterFunc(timeout+c.Grace, func() {
		c.finish(a, netif.ConnectResult{SSID: ssid, Status: netif.StatusConnectFailed, Err: ErrTimeout})
	})
	c.current = a
	c.state = Connecting
	c.mu.Unlock()

	logger.Info("credential", "connecting to %q (timeout %s)", ssid, timeout)
	if err := c.nic.Connect(ssid, timeout); err != nil {
		err = fmt.Errorf("credential: start join of %q: %w", ssid, err)
		c.finish(a, netif.ConnectResult{SSID: ssid, Status: netif.StatusConnectFailed, Err: err})
		return err
	}
	return nil
}

// Connect joins ssid and waits for the outcome. A cancelled context stops the
// wait but not the attempt, which still ends at its timeout.
func (c *Connector) Connect(ctx context.Context, ssid string, timeout time.Duration) (netif.ConnectResult, error) {
	done := make(chan netif.ConnectResult, 1)
	err := c.ConnectAsync(ssid, timeout, func(r netif.ConnectResult) { done <- r })
	if errors.Is(err, ErrAttemptInProgress) {
		return netif.ConnectResult{}, err
	}

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return netif.ConnectResult{}, ctx.Err()
	}
}

// ConnectAny tries stored profiles in order with one blocking attempt each
// and stops at the first success. It returns the SSIDs attempted.
func (c *Connector) ConnectAny(ctx context.Context, timeout time.Duration) ([]string, error) {
	if c.nic.IsConnected() {
		return nil, ErrAlreadyConnected
	}
	profiles, err := c.nic.Profiles()
	if err != nil {
		return nil, fmt.Errorf("credential: list profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}

	var tried []string
	for _, p := range profiles {
		if c.nic.IsConnected() {
			return tried, nil
		}
		tried = append(tried, p.SSID)
		r, err := c.Connect(ctx, p.SSID, timeout)
		if err != nil {
			return tried, err
		}
		if r.Connected() {
			logger.Info("credential", "connected to %q after %d attempts", p.SSID, len(tried))
			return tried, nil
		}
		logger.Warn("credential", "join %q failed: %s", p.SSID, r.Status)
	}
	return tried, fmt.Errorf("credential: none of %d stored profiles connected", len(profiles))
}

func (c *Connector) onResult(r netif.ConnectResult) {
	c.mu.Lock()
	a := c.current
	c.mu.Unlock()

	if a == nil || a.ssid != r.SSID {
		logger.Debug("credential", "ignoring unsolicited result for %q", r.SSID)
		return
	}
	c.finish(a, r)
}

func (c *Connector) finish(a *attempt, r netif.ConnectResult) {
	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		return
	}
	a.timer.Stop()
	c.current = nil
	c.last = r
	if r.Connected() {
		c.state = Connected
	} else {
		c.state = Failed
	}
	c.mu.Unlock()

	if a.cb != nil {
		a.cb(r)
	}
}
