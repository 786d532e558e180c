package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_FullSubscriberDoesNotBlock(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()
	defer cancel()

	for i := 0; i < changeBuffer*3; i++ {
		b.publish(Change{Collection: CollectionUsers})
	}
	assert.Len(t, ch, changeBuffer)
}

func TestBroadcaster_CancelClosesOnce(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	b.close()
	late, _ := b.subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
