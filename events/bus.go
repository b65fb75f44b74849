// Package events carries the progress and log events the launcher core
// emits towards whatever observer the surrounding application registers.
package events

import "sync"

// Event is one of the concrete event types below.
type Event interface{ isEvent() }

// Progress reports bytes transferred for one artifact. Within one artifact
// the Bytes field is monotonically increasing; across artifacts no ordering
// is guaranteed.
type Progress struct {
	Artifact string
	Bytes    int64
	Total    int64
	Percent  float64
}

// Installed is the terminal success of one install batch.
type Installed struct {
	VersionID string
}

// InstallFailed is the first hard failure of one install batch.
type InstallFailed struct {
	VersionID string
	Err       error
}

// LogLine is one line of the supervised game process's output.
type LogLine struct {
	ProfileID string
	Text      string
	IsError   bool
}

// Exited is the terminal event of one launch session, emitted exactly once.
type Exited struct {
	ProfileID string
	Code      int
}

func (Progress) isEvent()      {}
func (Installed) isEvent()     {}
func (InstallFailed) isEvent() {}
func (LogLine) isEvent()       {}
func (Exited) isEvent()        {}

const subscriberBuffer = 256

// Bus fans events out to any number of subscribers. Publishing never blocks:
// a subscriber that stops draining loses its oldest pending event instead of
// stalling the producer.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe returns a receive channel and a cancel function. The channel is
// closed after cancel or after Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		for {
			select {
			case sub <- e:
			default:
				// Full subscriber: drop its oldest event and retry.
				select {
				case <-sub:
				default:
				}
				continue
			}
			break
		}
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
