package intercept

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type write struct {
	key     string
	value   int
	existed bool
	sizeAt  int
}

func TestWrapObservesBeforeWrite(t *testing.T) {
	inner := NewMap[int]()
	inner.Store("a", 1)

	var writes []write
	var c Collection[int]
	c = Wrap[int](inner, func(key string, value, prev int, existed bool) {
		writes = append(writes, write{key: key, value: value, existed: existed, sizeAt: inner.Len()})
	})

	c.Store("b", 2)
	c.Store("a", 3)

	require.Len(t, writes, 2)
	assert.Equal(t, write{key: "b", value: 2, existed: false, sizeAt: 1}, writes[0])
	assert.Equal(t, write{key: "a", value: 3, existed: true, sizeAt: 2}, writes[1])

	// The wrapped collection holds exactly what an unwrapped one would.
	v, ok := inner.Load("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, inner.Len())
}

func TestWrapIsTransparentForReadsAndDeletes(t *testing.T) {
	inner := NewMap[string]()
	calls := 0
	c := Wrap[string](inner, func(string, string, string, bool) { calls++ })

	c.Store("x", "one")
	c.Store("y", "two")
	c.Delete("x")

	_, ok := c.Load("x")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"two"}, Values(c))
	assert.Equal(t, 2, calls, "deletes are not observed")

	inner.Store("z", "direct")
	v, ok := c.Load("z")
	require.True(t, ok)
	assert.Equal(t, "direct", v)
}

func TestRangeOrderAndEarlyStop(t *testing.T) {
	m := NewMap[int]()
	m.Store("c", 3)
	m.Store("a", 1)
	m.Store("b", 2)

	var keys []string
	m.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return len(keys) < 2
	})
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestHookInstallsOnce(t *testing.T) {
	h := NewHook("pb.api.pushes")
	installs := 0

	require.NoError(t, h.Install(func() error { installs++; return nil }))
	err := h.Install(func() error { installs++; return nil })
	assert.ErrorIs(t, err, ErrAlreadyHooked)
	assert.Equal(t, 1, installs)
	assert.True(t, h.Installed())
}

func TestHookRetriesAfterFailedInstall(t *testing.T) {
	h := NewHook("pb.error")
	boom := errors.New("not ready")

	assert.ErrorIs(t, h.Install(func() error { return boom }), boom)
	assert.False(t, h.Installed())
	assert.NoError(t, h.Install(func() error { return nil }))
	assert.True(t, h.Installed())
}

func TestDifferReportsNewKeys(t *testing.T) {
	var d Differ
	assert.Nil(t, d.Diff([]string{"a", "b"}))
	assert.Equal(t, []string{"c"}, d.Diff([]string{"a", "b", "c"}))
	assert.Nil(t, d.Diff([]string{"a", "c"}))
	assert.Equal(t, []string{"b", "d"}, d.Diff([]string{"b", "d", "d", "a"}))
}
