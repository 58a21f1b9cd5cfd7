package loader

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	paths := []string{"/a", "/b"}
	b := NewBase("system", paths)
	paths[0] = "/mutated"

	assert.Equal(t, "system", b.Name())
	assert.Equal(t, []string{"/a", "/b"}, b.Paths())

	got := b.Paths()
	got[1] = "/mutated"
	assert.Equal(t, []string{"/a", "/b"}, b.Paths(), "Paths must return a copy")
	assert.False(t, IsIsolated(b))
}

func TestIsolated(t *testing.T) {
	parent := NewBase("system", nil)

	l := NewIsolated("", parent, []string{"/x"})
	assert.NotEmpty(t, l.ID())
	assert.Equal(t, "isolated-"+l.ID(), l.Name())
	assert.Equal(t, l.Name(), l.String())
	assert.Same(t, parent, l.Parent())
	assert.Equal(t, []string{"/x"}, l.Paths())
	assert.False(t, l.Embedded())
	assert.True(t, IsIsolated(l))

	other := NewIsolated("", parent, nil)
	assert.NotEqual(t, l.ID(), other.ID())

	fixed := NewIsolated("launch-1", nil, nil)
	assert.Equal(t, "launch-1", fixed.ID())

	emb := NewEmbedded(parent, []string{"/y"})
	assert.True(t, emb.Embedded())
	assert.True(t, IsIsolated(emb))
}

func TestIsIsolated_Nil(t *testing.T) {
	assert.False(t, IsIsolated(nil))
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)

	l := NewBase("b", nil)
	got, ok := FromContext(NewContext(ctx, l))
	require.True(t, ok)
	assert.Same(t, l, got)

	_, ok = FromContext(NewContext(ctx, nil))
	assert.False(t, ok)
}

func TestEnvProvider(t *testing.T) {
	sep := string(os.PathListSeparator)

	t.Run("base from environment", func(t *testing.T) {
		p := &EnvProvider{
			Environ: func() []string { return []string{PathEnvKey + "=/lib/a" + sep + "/lib/b"} },
		}
		l, err := p.System()
		require.NoError(t, err)
		assert.False(t, IsIsolated(l))
		paths := l.Paths()
		require.GreaterOrEqual(t, len(paths), 2)
		assert.Equal(t, []string{"/lib/a", "/lib/b"}, paths[:2])
	})

	t.Run("bare key without value", func(t *testing.T) {
		p := &EnvProvider{
			Environ: func() []string { return []string{PathEnvKey} },
		}
		var l Loader
		var err error
		require.NotPanics(t, func() { l, err = p.System() })
		require.NoError(t, err)
		assert.False(t, IsIsolated(l))
		for _, path := range l.Paths() {
			assert.NotEqual(t, PathEnvKey, path)
		}
	})

	t.Run("inherited launch is isolated", func(t *testing.T) {
		p := &EnvProvider{
			Environ: func() []string { return nil },
			Inherit: func() (string, []string, bool, error) {
				return "abc", []string{"/p"}, true, nil
			},
		}
		l, err := p.System()
		require.NoError(t, err)
		require.True(t, IsIsolated(l))
		iso := l.(*Isolated)
		assert.Equal(t, "abc", iso.ID())
		assert.Equal(t, []string{"/p"}, iso.Paths())
		assert.Nil(t, iso.Parent())
	})

	t.Run("not inherited", func(t *testing.T) {
		p := &EnvProvider{
			Environ: func() []string { return nil },
			Inherit: func() (string, []string, bool, error) { return "", nil, false, nil },
		}
		l, err := p.System()
		require.NoError(t, err)
		assert.False(t, IsIsolated(l))
	})

	t.Run("inherit failure", func(t *testing.T) {
		sentinel := errors.New("bad payload")
		p := &EnvProvider{
			Inherit: func() (string, []string, bool, error) { return "", nil, false, sentinel },
		}
		_, err := p.System()
		assert.ErrorIs(t, err, sentinel)
	})
}

func TestStatic(t *testing.T) {
	l := NewBase("fixed", nil)
	got, err := Static{Loader: l}.System()
	require.NoError(t, err)
	assert.Same(t, l, got)
}
