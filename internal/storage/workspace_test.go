package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *WorkspaceState {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingKeyReturnsEmpty(t *testing.T) {
	s := newTestStore(t)

	v, err := s.Get("nope")
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestUpdateAndGet(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update("currentIssue", "42"))
	v, err := s.Get("currentIssue")
	require.NoError(t, err)
	require.Equal(t, "42", v)

	// overwrite
	require.NoError(t, s.Update("currentIssue", "7"))
	v, err = s.Get("currentIssue")
	require.NoError(t, err)
	require.Equal(t, "7", v)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update("issues", `{"issues":{}}`))
	require.NoError(t, s.Delete("issues"))

	v, err := s.Get("issues")
	require.NoError(t, err)
	require.Equal(t, "", v)

	// deleting again is fine
	require.NoError(t, s.Delete("issues"))
}
