package store

import "sync"

// Collection names a group of stored documents.
type Collection string

const (
	CollectionUsers    Collection = "users"
	CollectionSessions Collection = "sessions"
)

// Change notifies subscribers that a collection was written.
type Change struct {
	Collection Collection
}

const changeBuffer = 16

// broadcaster fans change notifications out to subscribers. Sends never
// block: a full subscriber drops the notification, which is safe because
// consumers always re-read the full matching set.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Change)}
}

func (b *broadcaster) subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, changeBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
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

func (b *broadcaster) publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
