package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndMembers(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()

	a, _ := createTestClient(hub, "")
	b, _ := createTestClient(hub, "")

	_, err := r.Register("u1", "s1", a)
	require.NoError(t, err)
	_, err = r.Register("u2", "s1", b)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1", "u2"}, r.MembersOf("s1"))
	assert.Equal(t, []string{"s1"}, r.ActiveSessions())
	assert.Empty(t, r.MembersOf("unknown"))

	userID, sessionID := a.Identity()
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "s1", sessionID)
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()
	c, _ := createTestClient(hub, "")

	_, err := r.Register("u1", "s1", c)
	require.NoError(t, err)

	sessionID, ok := r.Unregister("u1")
	assert.True(t, ok)
	assert.Equal(t, "s1", sessionID)

	_, ok = r.Unregister("u1")
	assert.False(t, ok)
	assert.Empty(t, r.ActiveSessions())

	userID, _ := c.Identity()
	assert.Empty(t, userID)
}

func TestRegistryReRegisterMovesSession(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()
	c, _ := createTestClient(hub, "")

	_, err := r.Register("u1", "s1", c)
	require.NoError(t, err)
	reg, err := r.Register("u1", "s2", c)
	require.NoError(t, err)

	assert.Nil(t, reg.Replaced)
	assert.Equal(t, "s1", reg.PreviousSession)
	assert.Empty(t, r.MembersOf("s1"))
	assert.Equal(t, []string{"u1"}, r.MembersOf("s2"))
}

func TestRegistryReconnectReplacesConnection(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()
	first, _ := createTestClient(hub, "")
	second, _ := createTestClient(hub, "")

	_, err := r.Register("u1", "s1", first)
	require.NoError(t, err)
	reg, err := r.Register("u1", "s1", second)
	require.NoError(t, err)

	assert.Same(t, first, reg.Replaced)
	assert.Empty(t, reg.PreviousSession)

	// The replaced socket closing later must not remove the new binding.
	_, _, registered := r.Detach(first)
	assert.False(t, registered)
	assert.Equal(t, []string{"u1"}, r.MembersOf("s1"))

	_, ok := r.UnregisterClient("u1", first)
	assert.False(t, ok)
}

func TestRegistrySwitchingUserOnSameSocket(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()
	c, _ := createTestClient(hub, "")

	_, err := r.Register("u1", "s1", c)
	require.NoError(t, err)
	reg, err := r.Register("u2", "s1", c)
	require.NoError(t, err)

	assert.Equal(t, "u1", reg.PreviousUser)
	assert.Equal(t, "s1", reg.PreviousUserSession)
	assert.Equal(t, []string{"u2"}, r.MembersOf("s1"))
}

func TestRegistryRejectsClosedClient(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()
	c, _ := createTestClient(hub, "")
	c.Close()

	_, err := r.Register("u1", "s1", c)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Empty(t, r.ActiveSessions())
}

func TestRegistryDetach(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()
	c, _ := createTestClient(hub, "")
	_, err := r.Register("u1", "s1", c)
	require.NoError(t, err)

	userID, sessionID, registered := r.Detach(c)
	assert.True(t, registered)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "s1", sessionID)

	conns, users := r.Counts()
	assert.Zero(t, conns)
	assert.Zero(t, users)
}

func TestRegistryRecipients(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()

	member, _ := createTestClient(hub, "")
	observer, _ := createTestClient(hub, "s1")
	other, _ := createTestClient(hub, "")
	idle, _ := createTestClient(hub, "")

	_, err := r.Register("u1", "s1", member)
	require.NoError(t, err)
	_, err = r.Register("u2", "s2", other)
	require.NoError(t, err)

	got := r.Recipients("s1", false)
	assert.ElementsMatch(t, []*Client{member, observer}, got)

	all := r.Recipients("s1", true)
	assert.ElementsMatch(t, []*Client{member, observer, other, idle}, all)

	idle.Close()
	assert.NotContains(t, r.Recipients("s1", true), idle)
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	r := hub.Registry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _ := createTestClient(hub, "")
			userID := fmt.Sprintf("u%d", i%10)
			_, _ = r.Register(userID, fmt.Sprintf("s%d", i%3), c)
		}(i)
	}
	wg.Wait()

	// Every user ends up in exactly one session.
	seen := map[string]int{}
	for _, s := range r.ActiveSessions() {
		for _, u := range r.MembersOf(s) {
			seen[u]++
		}
	}
	assert.Len(t, seen, 10)
	for u, n := range seen {
		assert.Equal(t, 1, n, u)
	}
	_, users := r.Counts()
	assert.Equal(t, 10, users)
}
