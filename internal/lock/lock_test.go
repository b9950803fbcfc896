package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
)

func TestSecondJobIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", ".pimsync.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = Acquire(path)
	assert.ErrorIs(t, err, pkgerrors.ErrJobInProgress)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	again, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestReleaseNil(t *testing.T) {
	var l *JobLock
	assert.NoError(t, l.Release())
}
