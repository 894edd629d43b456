package runtime

import (
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newRouterFixture() (*ConnectionRegistry, *RoomManager, *MessageRouter, *fakeDirectory, *fakeRecorder) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	directory := newFakeDirectory()
	recorder := &fakeRecorder{}
	registry := NewConnectionRegistry(log)
	rooms := NewRoomManager(registry, directory, log)
	router := NewMessageRouter(registry, rooms, directory, recorder, passthroughCensor{}, log)
	return registry, rooms, router, directory, recorder
}

func TestMessageRouter_SendPrivate_Delivers_And_Acknowledges(t *testing.T) {
	req := require.New(t)
	registry, _, router, directory, recorder := newRouterFixture()
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")

	result := router.SendPrivate(context.Background(), alice, "bob", "hello")

	// Then bob receives the message and alice the acknowledgment
	req.True(result.Delivered)
	received := bob.EventsNamed("receive-message")
	req.Len(received, 1)
	msg := received[0].(event.MessageReceived).Message
	req.Equal("hello", msg.Body)
	req.Equal("alice", msg.FromID)
	req.Equal(domain.KindPrivate, msg.Kind)

	acks := alice.EventsNamed("message-sent")
	req.Len(acks, 1)
	ack := acks[0].(event.MessageSent)
	req.True(ack.Delivered)

	// And both carry the same message id
	req.Equal(msg.ID, ack.Message.ID)

	// And the message was handed to the recorder
	req.Len(recorder.Messages(), 1)
	req.Equal(msg.ID, recorder.Messages()[0].ID)
}

func TestMessageRouter_SendPrivate_To_Offline_Recipient_Still_Acknowledges(t *testing.T) {
	req := require.New(t)
	registry, _, router, directory, recorder := newRouterFixture()
	alice := announce(registry, directory, "alice")

	// When alice messages bob, who is offline
	result := router.SendPrivate(context.Background(), alice, "bob", "hello")

	// Then the result is a structured failure, not an error
	req.False(result.Delivered)
	req.Equal(domain.ReasonRecipientOffline, result.Reason)

	// And alice still receives an acknowledgment reflecting that outcome
	acks := alice.EventsNamed("message-sent")
	req.Len(acks, 1)
	ack := acks[0].(event.MessageSent)
	req.False(ack.Delivered)
	req.Equal(domain.ReasonRecipientOffline, ack.Reason)

	// And nothing was recorded: durable fallback is the caller's business
	req.Empty(recorder.Messages())
}

func TestMessageRouter_SendRoom_Fans_Out_Including_Sender(t *testing.T) {
	req := require.New(t)
	registry, rooms, router, directory, _ := newRouterFixture()
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")
	rooms.Join(context.Background(), alice, "general", "")
	rooms.Join(context.Background(), bob, "general", "")

	result := router.SendRoom(context.Background(), bob, "hi")

	// Then both members receive the message through the same path
	req.True(result.Delivered)
	for _, handle := range []*fakeHandle{alice, bob} {
		received := handle.EventsNamed("receive-message")
		req.Len(received, 1)
		msg := received[0].(event.MessageReceived).Message
		req.Equal("hi", msg.Body)
		req.Equal(domain.KindRoom, msg.Kind)
		req.Equal(domain.RoomID("general"), msg.Room)
		req.Equal("bob", msg.FromID)
	}
}

func TestMessageRouter_SendRoom_Without_Room_Fails_With_Acknowledgment(t *testing.T) {
	req := require.New(t)
	registry, _, router, directory, _ := newRouterFixture()
	alice := announce(registry, directory, "alice")

	result := router.SendRoom(context.Background(), alice, "hi")

	req.False(result.Delivered)
	req.Equal(domain.ReasonNotInRoom, result.Reason)
	acks := alice.EventsNamed("message-sent")
	req.Len(acks, 1)
	req.Equal(domain.ReasonNotInRoom, acks[0].(event.MessageSent).Reason)
}

func TestMessageRouter_SendRoom_Preserves_Order_For_All_Members(t *testing.T) {
	req := require.New(t)
	registry, rooms, router, directory, _ := newRouterFixture()
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")
	rooms.Join(context.Background(), alice, "general", "")
	rooms.Join(context.Background(), bob, "general", "")

	// When two messages are accepted in sequence
	router.SendRoom(context.Background(), alice, "first")
	router.SendRoom(context.Background(), bob, "second")

	// Then every member observes them in the accepted order
	for _, handle := range []*fakeHandle{alice, bob} {
		received := handle.EventsNamed("receive-message")
		req.Len(received, 2)
		req.Equal("first", received[0].(event.MessageReceived).Message.Body)
		req.Equal("second", received[1].(event.MessageReceived).Message.Body)
	}
}

func TestMessageRouter_Censors_Bodies_Before_FanOut(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	directory := newFakeDirectory()
	registry := NewConnectionRegistry(log)
	rooms := NewRoomManager(registry, directory, log)
	router := NewMessageRouter(registry, rooms, directory, &fakeRecorder{}, upperCensor{}, log)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")

	router.SendPrivate(context.Background(), alice, "bob", "hello")

	received := bob.EventsNamed("receive-message")
	req.Len(received, 1)
	req.Equal("HELLO", received[0].(event.MessageReceived).Message.Body)
}

type upperCensor struct{}

func (upperCensor) Censor(original string) string { return strings.ToUpper(original) }
