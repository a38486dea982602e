package named

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	errMissing   = errors.New("missing")
	errDuplicate = errors.New("duplicate")
)

type item struct {
	name  string
	value int
}

func (i item) Key() string { return i.name }

func TestList_OrderAndLookup(t *testing.T) {
	l := New[item](errMissing, errDuplicate)
	require.NoError(t, l.Add(item{"omega", 1}))
	require.NoError(t, l.Add(item{"chi", 2}))
	require.NoError(t, l.Add(item{"phi", 3}))

	require.Equal(t, []string{"omega", "chi", "phi"}, l.Names())
	i, err := l.Index("chi")
	require.NoError(t, err)
	require.Equal(t, 1, i)

	_, err = l.Get("tth")
	require.ErrorIs(t, err, errMissing)
	require.ErrorIs(t, l.Add(item{"phi", 4}), errDuplicate)
	require.Equal(t, 3, l.Len())
}

func TestList_CloneIsIndependent(t *testing.T) {
	l := New[item](errMissing, errDuplicate)
	require.NoError(t, l.Add(item{"a", 1}))
	c := l.Clone()
	c.Ref(0).value = 42
	require.NoError(t, c.Add(item{"b", 2}))

	require.Equal(t, 1, l.At(0).value)
	require.Equal(t, 1, l.Len())
	_, err := l.Get("b")
	require.ErrorIs(t, err, errMissing)
}
