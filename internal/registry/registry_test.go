package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ sent [][]byte }

func (f *fakeConn) Send(payload []byte) bool {
	f.sent = append(f.sent, payload)
	return true
}

func TestRegisterLastWriterWins(t *testing.T) {
	r := New()
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}

	r.Register(userID, first)
	r.Register(userID, second)

	conn, ok := r.Resolve(userID)
	require.True(t, ok)
	assert.Same(t, second, conn)
	assert.Equal(t, 1, r.Count())
}

func TestUnregisterIfCurrent(t *testing.T) {
	r := New()
	userID := uuid.New()
	conn := &fakeConn{}
	r.Register(userID, conn)

	assert.True(t, r.UnregisterIfCurrent(userID, conn))
	_, ok := r.Resolve(userID)
	assert.False(t, ok)
}

func TestStaleDisconnectDoesNotEvictReconnect(t *testing.T) {
	r := New()
	userID := uuid.New()
	old := &fakeConn{}
	fresh := &fakeConn{}

	r.Register(userID, old)
	r.Register(userID, fresh)

	// The old connection's deferred disconnect fires after the reconnect.
	assert.False(t, r.UnregisterIfCurrent(userID, old))

	conn, ok := r.Resolve(userID)
	require.True(t, ok)
	assert.Same(t, fresh, conn)
}

func TestConnectedAmong(t *testing.T) {
	r := New()
	online := uuid.New()
	offline := uuid.New()
	r.Register(online, &fakeConn{})

	connected := r.ConnectedAmong([]uuid.UUID{online, offline})
	assert.Equal(t, []uuid.UUID{online}, connected)
}
