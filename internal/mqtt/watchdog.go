package mqtt

import (
	"log"
	"os"
	"time"
)

// A Watchdog exits the process when no message has been observed for the
// configured silence limit, so an external supervisor restarts it. This
// covers broker states where the connection looks healthy but delivery
// has stopped.
type Watchdog struct {
	silenceLimit time.Duration
	keepAlive    chan struct{}
	done         chan struct{}
}

// NewWatchdog starts a watchdog that tolerates silenceLimit between
// messages.
func NewWatchdog(silenceLimit time.Duration) *Watchdog {
	w := &Watchdog{
		silenceLimit: silenceLimit,
		keepAlive:    make(chan struct{}),
		done:         make(chan struct{}),
	}
	go w.run()
	return w
}

// Observe marks message activity. Non-blocking so a stopped watchdog
// never stalls the intake loop.
func (w *Watchdog) Observe() {
	select {
	case w.keepAlive <- struct{}{}:
	default:
	}
}

// Stop terminates the watchdog goroutine.
func (w *Watchdog) Stop() {
	w.done <- struct{}{}
}

func (w *Watchdog) run() {
	t := time.NewTicker(10 * time.Second)
	lastKeepAlive := time.Now()
	for {
		select {
		case <-t.C:
			if time.Since(lastKeepAlive) > w.silenceLimit {
				log.Printf("error: no message for %s, exiting", w.silenceLimit)
				os.Exit(42)
			}
		case <-w.keepAlive:
			lastKeepAlive = time.Now()
		case <-w.done:
			t.Stop()
			return
		}
	}
}
