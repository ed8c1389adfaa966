package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/agent-orchestrator/internal/models"
)

func TestSubscribeFiltersByTaskID(t *testing.T) {
	b := New(4, nil)
	ch, unsub := b.Subscribe("t1")
	defer unsub()

	b.Publish(models.Event{Type: models.EventTaskCreated, TaskID: "t2"})
	b.Publish(models.Event{Type: models.EventTaskCreated, TaskID: "t1"})

	select {
	case ev := <-ch:
		require.Equal(t, "t1", ev.TaskID)
	case <-time.After(time.Second):
		t.Fatal("expected one event for t1")
	}

	select {
	case ev, ok := <-ch:
		t.Fatalf("unexpected second event: %+v ok=%v", ev, ok)
	default:
	}
}

func TestWildcardSubscriberSeesAllTasks(t *testing.T) {
	b := New(4, nil)
	ch, unsub := b.Subscribe("")
	defer unsub()

	b.Publish(models.Event{Type: models.EventTaskCreated, TaskID: "a"})
	b.Publish(models.Event{Type: models.EventTaskCreated, TaskID: "b"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			seen[ev.TaskID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.True(t, seen["a"])
	require.True(t, seen["b"])
}

func TestPublishOrderingPerSubscriber(t *testing.T) {
	b := New(8, nil)
	ch, unsub := b.Subscribe("t1")
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(models.Event{Type: models.EventTaskProgress, TaskID: "t1", Payload: i})
	}

	for i := 0; i < 5; i++ {
		ev := <-ch
		require.Equal(t, i, ev.Payload)
	}
}

func TestPublishDropsOnFullBacklogWithoutBlocking(t *testing.T) {
	b := New(1, nil)
	_, unsub := b.Subscribe("t1")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(models.Event{Type: models.EventTaskProgress, TaskID: "t1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4, nil)
	ch, unsub := b.Subscribe("t1")
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}
