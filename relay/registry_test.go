package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/liverelay/types"
	"github.com/BaSui01/liverelay/upstream"
)

func testSession(id string) *Session {
	return newSession(id, nil, upstream.Config{}, NewCannedResponder(), defaultDialer, nil, zap.NewNop())
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil)

	s := testSession("a")
	require.NoError(t, r.Register("a", s))

	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DuplicateIdentity(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("a", testSession("a")))
	err := r.Register("a", testSession("a"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateIdentity, types.GetErrorCode(err))
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("a", testSession("a")))
	r.Unregister("a")
	r.Unregister("a")
	r.Unregister("never-registered")

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

// Removing one session must not affect lookup of another.
func TestRegistry_Isolation(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("a", testSession("a")))
	require.NoError(t, r.Register("b", testSession("b")))

	r.Unregister("a")

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	got, ok := r.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.ID())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			_ = r.Register(id, testSession(id))
			r.Lookup(id)
			r.Unregister(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("a", testSession("a")))
	require.NoError(t, r.Register("b", testSession("b")))

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
}
