package live

import (
	"context"
	"sort"
	"time"
)

type tickToken struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TickerSet owns one periodic ticker per open session ID. Each ticker sends
// its session ID on the shared channel. A TickerSet is not safe for
// concurrent use; it belongs to the view model loop.
type TickerSet struct {
	interval time.Duration
	out      chan<- string
	tokens   map[string]*tickToken
}

// NewTickerSet creates a ticker set delivering on out.
func NewTickerSet(interval time.Duration, out chan<- string) *TickerSet {
	return &TickerSet{
		interval: interval,
		out:      out,
		tokens:   make(map[string]*tickToken),
	}
}

// Sync makes the running tickers match ids. Tickers for IDs already running
// are left alone.
func (t *TickerSet) Sync(ids []string) (started, stopped []string) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	for id := range t.tokens {
		if _, ok := want[id]; !ok {
			t.Stop(id)
			stopped = append(stopped, id)
		}
	}
	for id := range want {
		if _, ok := t.tokens[id]; !ok {
			t.start(id)
			started = append(started, id)
		}
	}

	sort.Strings(started)
	sort.Strings(stopped)
	return started, stopped
}

func (t *TickerSet) start(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	token := &tickToken{cancel: cancel, done: make(chan struct{})}
	t.tokens[id] = token

	go func() {
		defer close(token.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case t.out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Stop cancels the ticker for id and waits for it to exit.
func (t *TickerSet) Stop(id string) bool {
	token, ok := t.tokens[id]
	if !ok {
		return false
	}
	token.cancel()
	<-token.done
	delete(t.tokens, id)
	return true
}

// StopAll cancels every ticker.
func (t *TickerSet) StopAll() {
	for id := range t.tokens {
		t.Stop(id)
	}
}

// Active returns the IDs with a running ticker, sorted.
func (t *TickerSet) Active() []string {
	ids := make([]string, 0, len(t.tokens))
	for id := range t.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
