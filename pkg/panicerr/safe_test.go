package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	require.NoError(t, Safe(func() error { return nil })())

	want := errors.New("boom")
	assert.Equal(t, want, Safe(func() error { return want })())

	err := Safe(func() error { panic("stage collapse") })()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage collapse")
}

func TestSafeContext(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, SafeContext(func(context.Context) error { return nil })(ctx))

	err := SafeContext(func(context.Context) error { panic("trap") })(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trap")
}

func TestCall(t *testing.T) {
	assert.NoError(t, Call(func() {}))

	err := Call(func() { panic(errors.New("dropped cue")) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dropped cue")
}
