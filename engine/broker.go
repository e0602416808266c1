package engine

import (
	"sync/atomic"
	"time"

	"github.com/firehorse/darkmix"
)

// Broker carries messages from the render goroutine and the device callback
// to the control goroutine. Senders never block: when the queue is full the
// message is dropped and counted.
type Broker struct {
	ToControl chan darkmix.Alert

	dropped atomic.Int64
}

const brokerQueueSize = 1024

func NewBroker() *Broker {
	return &Broker{ToControl: make(chan darkmix.Alert, brokerQueueSize)}
}

// Alert queues an alert for the control goroutine. It is safe to call from
// the render goroutine.
func (b *Broker) Alert(a darkmix.Alert) {
	if !darkmix.TrySend(b.ToControl, a) {
		b.dropped.Add(1)
	}
}

// Drain hands every queued alert to f and returns how many there were.
func (b *Broker) Drain(f func(darkmix.Alert)) int {
	n := 0
	for {
		select {
		case a := <-b.ToControl:
			f(a)
			n++
		default:
			return n
		}
	}
}

// Dropped returns how many alerts were lost to a full queue.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// TimeoutReceive waits at most t for a value on c. ok is false on timeout
// and when c is closed; the command uses it to bound shutdown.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
