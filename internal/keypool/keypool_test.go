package keypool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DropsBlankAndCaps(t *testing.T) {
	raw := []string{" a ", "", "b", "   "}
	for i := 0; i < 20; i++ {
		raw = append(raw, "k")
	}
	r := New(raw)
	assert.Equal(t, MaxKeys, r.Len())

	key, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "a", key)
}

func TestRotate_WrapsAround(t *testing.T) {
	r := New([]string{"a", "b", "c"})
	var seen []string
	for i := 0; i < 4; i++ {
		r.Rotate()
		k, _ := r.Current()
		seen = append(seen, k)
	}
	assert.Equal(t, []string{"b", "c", "a", "b"}, seen)
}

func TestRotate_Observer(t *testing.T) {
	var gotIdx []int
	var gotKey []string
	r := New([]string{"a", "b"}, WithObserver(func(i int, k string) {
		gotIdx = append(gotIdx, i)
		gotKey = append(gotKey, k)
	}))

	r.Rotate()
	r.Rotate()

	assert.Equal(t, []int{1, 0}, gotIdx)
	assert.Equal(t, []string{"b", "a"}, gotKey)
}

func TestEmptyPool(t *testing.T) {
	called := false
	r := New(nil, WithObserver(func(int, string) { called = true }))

	_, ok := r.Current()
	assert.False(t, ok)

	r.Rotate()
	assert.False(t, called)
	assert.Equal(t, 0, r.Index())
}

func TestWithCursor_Wraps(t *testing.T) {
	r := New([]string{"a", "b", "c"}, WithCursor(4))
	k, _ := r.Current()
	assert.Equal(t, "b", k)

	r = New([]string{"a", "b", "c"}, WithCursor(-1))
	k, _ = r.Current()
	assert.Equal(t, "c", k)
}

func TestClone_Independent(t *testing.T) {
	r := New([]string{"a", "b"})
	c := r.Clone()

	c.Rotate()

	k, _ := r.Current()
	assert.Equal(t, "a", k)
	k, _ = c.Current()
	assert.Equal(t, "b", k)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "****wxyz", Mask("AIzaSyabcdwxyz"))
}
