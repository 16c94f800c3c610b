package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeTaskToggled, Data: TaskToggled{Task: "t", Enabled: true}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, TypeTaskToggled, e.Type)
			assert.False(t, e.Time.IsZero())
			tt, ok := e.Data.(TaskToggled)
			require.True(t, ok)
			assert.True(t, tt.Enabled)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: "a"})
		b.Publish(Event{Type: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, "a", (<-ch).Type)
	assert.Len(t, ch, 0)
	assert.EqualValues(t, 1, b.Dropped())
}

func TestUnsubscribeClosesAndPublishSurvives(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	b.Publish(Event{Type: "x"})
}
