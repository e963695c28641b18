package driver

import (
	"sync"

	"github.com/google/uuid"
)

// BaseDriver provides the connection-status bookkeeping every driver
// needs, so concrete drivers embed it instead of reimplementing the
// subscriber list and mutex each time. It does not satisfy Driver by
// itself: embedding drivers still implement Name/Init/Execute/Close.
type BaseDriver struct {
	mu         sync.Mutex
	status     Status
	observers  []func(Status)
	instanceID string
	idOnce     sync.Once
}

// InstanceID returns a process-lifetime-stable identifier for this driver
// instance, minted lazily on first use. Log lines from a reconnecting
// driver carry the same InstanceID across reconnect attempts, letting
// operators correlate a burst of "connecting"/"error" log lines with one
// physical connection's lifecycle rather than guessing from timestamps.
func (b *BaseDriver) InstanceID() string {
	b.idOnce.Do(func() { b.instanceID = uuid.NewString() })
	return b.instanceID
}

// SetStatus updates the driver's connection status and notifies every
// registered observer. Safe for concurrent use.
func (b *BaseDriver) SetStatus(s Status) {
	b.mu.Lock()
	b.status = s
	observers := make([]func(Status), len(b.observers))
	copy(observers, b.observers)
	b.mu.Unlock()

	for _, cb := range observers {
		cb(s)
	}
}

// ConnectionStatus returns the driver's current connection status.
func (b *BaseDriver) ConnectionStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// SubscribeConnectionStatus registers cb to be called on every future
// SetStatus call. It does not replay the current status.
func (b *BaseDriver) SubscribeConnectionStatus(cb func(Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, cb)
}

// SubscribeFeedback is a no-op default for drivers that never emit
// unsolicited feedback. Drivers that do, override it.
func (b *BaseDriver) SubscribeFeedback(sink chan<- FeedbackEvent) {}

// SubscribeIndicators is a no-op default for drivers that never emit
// indicator hints. Drivers that do, override it.
func (b *BaseDriver) SubscribeIndicators(sink chan<- IndicatorHint) {}
