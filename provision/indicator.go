package provision

import (
	"sync"
	"time"

	"github.com/user/wifiprov/logger"
)

// BlinkPeriod is how long the indicator stays in each state while
// advertising.
const BlinkPeriod = 500 * time.Millisecond

// Indicator is a single status light.
type Indicator interface {
	Set(on bool)
}

// LogIndicator logs changes of the light.
type LogIndicator struct {
	mu    sync.Mutex
	on    bool
	known bool
}

func (l *LogIndicator) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.known && l.on == on {
		return
	}
	l.on, l.known = on, true
	if on {
		logger.Debug("indicator", "on")
	} else {
		logger.Debug("indicator", "off")
	}
}

// On reports the last state set.
func (l *LogIndicator) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// blinker drives an Indicator from the poll loop: solid while a peer is
// connected, toggling every period ticks while advertising, off otherwise.
type blinker struct {
	out    Indicator
	period int
	ticks  int
	on     bool
}

func newBlinker(out Indicator, poll time.Duration) *blinker {
	period := 1
	if poll > 0 && BlinkPeriod > poll {
		period = int(BlinkPeriod / poll)
	}
	return &blinker{out: out, period: period}
}

func (b *blinker) update(connected, advertising bool) {
	switch {
	case connected:
		b.ticks = 0
		b.on = true
	case advertising:
		if b.ticks%b.period == 0 {
			b.on = !b.on
		}
		b.ticks++
	default:
		b.ticks = 0
		b.on = false
	}
	b.out.Set(b.on)
}
