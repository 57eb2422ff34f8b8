package hub

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/observability"
)

func testMessage(conv domain.ConversationID, seq uint64) event.MessageAppended {
	return event.MessageAppended{Message: domain.Message{
		Seq:          seq,
		Conversation: conv,
		Sender:       "alice",
		Body:         "ping",
		CreatedAt:    time.Now().UTC(),
	}}
}

func Test_Publish_Reaches_Current_Observers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), observability.NewMetrics(), 8)

	alice := registry.Subscribe("conv-1", "alice")
	bob := registry.Subscribe("conv-1", "bob")
	stranger := registry.Subscribe("conv-2", "carol")

	registry.Publish(testMessage("conv-1", 1))

	req.Len(alice.Sink.Events, 1)
	req.Len(bob.Sink.Events, 1)
	req.Empty(stranger.Sink.Events)

	evt := <-alice.Sink.Events
	appended, ok := evt.(event.MessageAppended)
	req.True(ok)
	req.Equal(uint64(1), appended.Message.Seq)
}

func Test_Cancel_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), observability.NewMetrics(), 8)

	sub := registry.Subscribe("conv-1", "alice")
	sub.Cancel()
	sub.Cancel() // terminal and idempotent

	registry.Publish(testMessage("conv-1", 1))
	req.Empty(sub.Sink.Events)
	req.Zero(registry.ObserverCount())
}

func Test_Full_Sink_Does_Not_Block_Publisher(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), observability.NewMetrics(), 1)

	stalled := registry.Subscribe("conv-1", "alice")

	// The buffer holds one event; everything beyond is dropped, not queued.
	start := time.Now()
	for seq := uint64(1); seq <= 5; seq++ {
		registry.Publish(testMessage("conv-1", seq))
	}
	req.Less(time.Since(start), time.Second)
	req.Len(stalled.Sink.Events, 1)

	evt := <-stalled.Sink.Events
	req.Equal(uint64(1), evt.(event.MessageAppended).Message.Seq)
}

func Test_Resubscribe_Replaces_Previous_Sink(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), observability.NewMetrics(), 8)

	old := registry.Subscribe("conv-1", "alice")
	fresh := registry.Subscribe("conv-1", "alice")

	registry.Publish(testMessage("conv-1", 1))
	req.Empty(old.Sink.Events)
	req.Len(fresh.Sink.Events, 1)
	req.Equal(1, registry.ObserverCount())
}

func Test_Stale_Cancel_Leaves_Replacement_Alive(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), observability.NewMetrics(), 8)

	// Reconnect replaces the sink; the old handle's deferred cleanup fires
	// afterwards, as a dropped connection's handler unwinds.
	old := registry.Subscribe("conv-1", "alice")
	fresh := registry.Subscribe("conv-1", "alice")
	old.Cancel()

	req.Equal(1, registry.ObserverCount())

	registry.Publish(testMessage("conv-1", 1))
	req.Empty(old.Sink.Events)
	req.Len(fresh.Sink.Events, 1)

	fresh.Cancel()
	req.Zero(registry.ObserverCount())
}
