package runtime

import (
	"chat-engine/domain"
	"chat-engine/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTypingFixture(expiry time.Duration) (*ConnectionRegistry, *RoomManager, *TypingTracker, *fakeDirectory) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	directory := newFakeDirectory()
	registry := NewConnectionRegistry(log)
	rooms := NewRoomManager(registry, directory, log)
	tracker := NewTypingTracker(registry, rooms, directory, expiry, log)
	return registry, rooms, tracker, directory
}

func TestTypingTracker_Start_Broadcasts_To_Recipient_Only(t *testing.T) {
	req := require.New(t)
	registry, _, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")

	err := tracker.StartTyping(context.Background(), alice, domain.IdentityDestination("bob"))

	req.NoError(err)
	req.Len(bob.EventsNamed("typing-started"), 1)
	req.Empty(alice.EventsNamed("typing-started"))
}

func TestTypingTracker_Restart_Before_Expiry_Does_Not_Rebroadcast(t *testing.T) {
	req := require.New(t)
	registry, _, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")

	dest := domain.IdentityDestination("bob")
	req.NoError(tracker.StartTyping(context.Background(), alice, dest))
	req.NoError(tracker.StartTyping(context.Background(), alice, dest))

	// Re-invocation re-arms the timer without a duplicate broadcast
	req.Len(bob.EventsNamed("typing-started"), 1)
}

func TestTypingTracker_Stop_Clears_And_Broadcasts(t *testing.T) {
	req := require.New(t)
	registry, _, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")

	dest := domain.IdentityDestination("bob")
	req.NoError(tracker.StartTyping(context.Background(), alice, dest))
	tracker.StopTyping(context.Background(), alice, dest)

	req.Len(bob.EventsNamed("typing-stopped"), 1)

	// A second stop is a no-op
	tracker.StopTyping(context.Background(), alice, dest)
	req.Len(bob.EventsNamed("typing-stopped"), 1)
}

func TestTypingTracker_Expiry_Synthesizes_Exactly_One_Stop(t *testing.T) {
	req := require.New(t)
	registry, rooms, tracker, directory := newTypingFixture(30 * time.Millisecond)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")
	rooms.Join(context.Background(), alice, "general", "")
	rooms.Join(context.Background(), bob, "general", "")

	// Given alice starts typing in the room and never stops
	req.NoError(tracker.StartTyping(context.Background(), alice, domain.RoomDestination("general")))

	// When the expiry window passes with no further activity
	require.Eventually(t, func() bool {
		return len(bob.EventsNamed("typing-stopped")) == 1
	}, time.Second, 10*time.Millisecond)

	// Then bob observed exactly one started and one synthesized stopped
	req.Len(bob.EventsNamed("typing-started"), 1)
	req.Len(bob.EventsNamed("typing-stopped"), 1)
	req.Empty(alice.EventsNamed("typing-stopped"))
}

func TestTypingTracker_Stale_Expiry_Does_Not_Clear_A_Rearmed_Mark(t *testing.T) {
	req := require.New(t)
	registry, _, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")

	dest := domain.IdentityDestination("bob")
	key := markKey{conn: alice.ID(), dest: dest}
	req.NoError(tracker.StartTyping(context.Background(), alice, dest))
	tracker.mu.Lock()
	staleGen := tracker.marks[key].gen
	tracker.mu.Unlock()

	// Given the mark was re-armed after the first timer fired
	req.NoError(tracker.StartTyping(context.Background(), alice, dest))

	// When the first timer's expiry finally gets the mutex
	tracker.expire(key, staleGen)

	// Then the re-armed mark survives and nothing is broadcast
	req.Empty(bob.EventsNamed("typing-stopped"))
	tracker.mu.Lock()
	mark, ok := tracker.marks[key]
	tracker.mu.Unlock()
	req.True(ok)

	// And the current generation still expires normally
	tracker.expire(key, mark.gen)
	req.Len(bob.EventsNamed("typing-stopped"), 1)
}

func TestTypingTracker_Room_Typing_Requires_Membership(t *testing.T) {
	req := require.New(t)
	registry, _, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")

	err := tracker.StartTyping(context.Background(), alice, domain.RoomDestination("general"))

	req.ErrorIs(err, errors.ErrNotAMember)
}

func TestTypingTracker_ClearConnection_Stops_All_Marks(t *testing.T) {
	req := require.New(t)
	registry, rooms, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")
	bob := announce(registry, directory, "bob")
	rooms.Join(context.Background(), alice, "general", "")
	rooms.Join(context.Background(), bob, "general", "")

	req.NoError(tracker.StartTyping(context.Background(), alice, domain.RoomDestination("general")))
	req.NoError(tracker.StartTyping(context.Background(), alice, domain.IdentityDestination("bob")))

	// When alice's connection goes away
	tracker.ClearConnection(context.Background(), alice.ID())

	// Then bob sees a stop for each mark and no orphaned indicator remains
	req.Len(bob.EventsNamed("typing-stopped"), 2)
	tracker.mu.Lock()
	req.Empty(tracker.marks)
	tracker.mu.Unlock()
}

func TestTypingTracker_Typing_To_Offline_Recipient_Is_Silent(t *testing.T) {
	req := require.New(t)
	registry, _, tracker, directory := newTypingFixture(time.Minute)
	alice := announce(registry, directory, "alice")

	err := tracker.StartTyping(context.Background(), alice, domain.IdentityDestination("bob"))

	req.NoError(err)
	req.Empty(alice.Events())
}
