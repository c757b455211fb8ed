package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	target  string
	event   string
	payload interface{}
}

type fakeGroups struct {
	mu      sync.Mutex
	groups  map[string]map[string]bool
	closed  map[string]bool
	toGroup []emitted
	toConn  []emitted
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{groups: make(map[string]map[string]bool), closed: make(map[string]bool)}
}

func (f *fakeGroups) close(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[connID] = true
}

func (f *fakeGroups) AddToGroup(connID, room string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed[connID] {
		return false
	}
	if f.groups[room] == nil {
		f.groups[room] = make(map[string]bool)
	}
	f.groups[room][connID] = true
	return true
}

func (f *fakeGroups) RemoveFromGroup(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups[room], connID)
	if len(f.groups[room]) == 0 {
		delete(f.groups, room)
	}
}

func (f *fakeGroups) EmitToGroup(room, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toGroup = append(f.toGroup, emitted{target: room, event: event, payload: payload})
}

func (f *fakeGroups) EmitTo(connID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toConn = append(f.toConn, emitted{target: connID, event: event, payload: payload})
}

func (f *fakeGroups) broadcasts() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.toGroup...)
}

func (f *fakeGroups) direct() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.toConn...)
}

func (f *fakeGroups) members(room string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.groups[room] {
		out = append(out, id)
	}
	return out
}

func startCoordinator(t *testing.T, opts ...Option) (*Coordinator, *fakeGroups) {
	t.Helper()
	groups := newFakeGroups()
	c := NewCoordinator(groups, nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, groups
}

func TestCoordinatorScenarioTwoViewers(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	require.NoError(t, c.Join(ctx, "B", "w1:sess2", "10.0.0.2"))

	b := groups.broadcasts()
	require.Len(t, b, 2)
	assert.Equal(t, emitted{target: "w1", event: "viewer-count-w1", payload: 2}, b[1])
	assert.ElementsMatch(t, []string{"A", "B"}, groups.members("w1"))

	require.NoError(t, c.Disconnect(ctx, "A"))
	b = groups.broadcasts()
	require.Len(t, b, 3)
	assert.Equal(t, emitted{target: "w1", event: "viewer-count-w1", payload: 1}, b[2])

	require.NoError(t, c.Disconnect(ctx, "B"))
	assert.Len(t, groups.broadcasts(), 3, "no broadcast to a deleted room")

	rooms, err := c.Rooms(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rooms, "w1")
	n, err := c.ViewerCount(ctx, "w1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCoordinatorSameIdentityCountsOnce(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	require.NoError(t, c.Join(ctx, "B", "w1", "10.0.0.1"))

	require.Len(t, groups.broadcasts(), 1, "second tab of a counted viewer must not broadcast")
	n, _ := c.ViewerCount(ctx, "w1")
	assert.Equal(t, 1, n)
	assert.Contains(t, groups.direct(), emitted{target: "B", event: "viewer-count-w1", payload: 1})

	require.NoError(t, c.Disconnect(ctx, "A"))
	n, _ = c.ViewerCount(ctx, "w1")
	assert.Equal(t, 1, n)
	assert.Len(t, groups.broadcasts(), 1)

	require.NoError(t, c.Disconnect(ctx, "B"))
	rooms, _ := c.Rooms(ctx)
	assert.Empty(t, rooms)
}

func TestCoordinatorJoinNormalizesRoomKey(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "abc:123", "10.0.0.1"))

	room, err := c.RoomOf(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "abc", room)
	assert.Equal(t, []string{"A"}, groups.members("abc"))
	assert.Empty(t, groups.members("abc:123"))
}

func TestCoordinatorRejoinLeavesPreviousRoom(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	require.NoError(t, c.Join(ctx, "B", "w1", "10.0.0.2"))
	require.NoError(t, c.Join(ctx, "A", "w2", "10.0.0.1"))

	assert.Equal(t, []string{"B"}, groups.members("w1"))
	assert.Equal(t, []string{"A"}, groups.members("w2"))

	rooms, err := c.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"w1": 1, "w2": 1}, rooms)

	b := groups.broadcasts()
	assert.Equal(t, emitted{target: "w1", event: "viewer-count-w1", payload: 1}, b[len(b)-2])
	assert.Equal(t, emitted{target: "w2", event: "viewer-count-w2", payload: 1}, b[len(b)-1])
}

func TestCoordinatorJoinSameRoomTwice(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	require.NoError(t, c.Join(ctx, "A", "w1:s9", "10.0.0.1"))

	assert.Len(t, groups.broadcasts(), 1)
	n, _ := c.ViewerCount(ctx, "w1")
	assert.Equal(t, 1, n)
}

func TestCoordinatorLeave(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	require.NoError(t, c.Join(ctx, "B", "w1", "10.0.0.2"))

	// not in that room
	require.NoError(t, c.Leave(ctx, "A", "w7"))
	require.NoError(t, c.Leave(ctx, "ghost", "w1"))
	assert.Len(t, groups.broadcasts(), 2)

	require.NoError(t, c.Leave(ctx, "A", "w1:sess"))
	b := groups.broadcasts()
	require.Len(t, b, 3)
	assert.Equal(t, 1, b[2].payload)
	room, _ := c.RoomOf(ctx, "A")
	assert.Empty(t, room)

	// the connection is still known and can join again
	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	n, _ := c.ViewerCount(ctx, "w1")
	assert.Equal(t, 2, n)
}

func TestCoordinatorDisconnectUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Disconnect(ctx, "nobody"))
	assert.Empty(t, groups.broadcasts())
}

func TestCoordinatorJoinAfterTransportClosed(t *testing.T) {
	ctx := context.Background()
	c, groups := startCoordinator(t)

	require.NoError(t, c.Join(ctx, "A", "w1", "10.0.0.1"))
	// B is gone from the transport before its join is processed
	groups.close("B")
	require.NoError(t, c.Disconnect(ctx, "B"))
	require.NoError(t, c.Join(ctx, "B", "w1", "10.0.0.2"))

	n, err := c.ViewerCount(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	room, _ := c.RoomOf(ctx, "B")
	assert.Empty(t, room)
	assert.Len(t, groups.broadcasts(), 1)

	// a closed connection that was in another room leaves it
	require.NoError(t, c.Join(ctx, "C", "w2", "10.0.0.3"))
	groups.close("C")
	require.NoError(t, c.Join(ctx, "C", "w1", "10.0.0.3"))
	rooms, _ := c.Rooms(ctx)
	assert.Equal(t, map[string]int{"w1": 1}, rooms)
}

func TestCoordinatorRejectsEmptyRoom(t *testing.T) {
	c, _ := startCoordinator(t)

	err := c.Join(context.Background(), "A", ":sess", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestCoordinatorObserver(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var seen []int
	c, _ := startCoordinator(t, WithViewerObserver(func(room string, count int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, count)
	}))

	require.NoError(t, c.Join(ctx, "A", "w1", "a"))
	require.NoError(t, c.Join(ctx, "B", "w1", "b"))
	require.NoError(t, c.Disconnect(ctx, "A"))
	require.NoError(t, c.Disconnect(ctx, "B"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 1, 0}, seen)
}

func TestCoordinatorSweepRemovesEmptyRooms(t *testing.T) {
	ctx := context.Background()
	c, _ := startCoordinator(t, WithSweepInterval(10*time.Millisecond))

	require.NoError(t, c.submit(ctx, func() {
		c.registry.members["stale"] = map[string]string{}
		c.registry.identities["stale"] = map[string]struct{}{}
	}))

	require.Eventually(t, func() bool {
		var exists bool
		_ = c.submit(ctx, func() { exists = c.registry.Exists("stale") })
		return !exists
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinatorStopped(t *testing.T) {
	groups := newFakeGroups()
	c := NewCoordinator(groups, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.Done()

	err := c.Join(context.Background(), "A", "w1", "a")
	assert.ErrorIs(t, err, ErrStopped)
}
