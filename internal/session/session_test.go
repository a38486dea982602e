package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
)

func testList(t *testing.T) *pseudo.EngineList {
	t.Helper()
	g, err := geometry.New("E4CV")
	require.NoError(t, err)
	l, err := pseudo.NewEngineList(g, detector.New0D(), sample.New("test"))
	require.NoError(t, err)
	return l
}

func TestDo_VersionOnSuccessOnly(t *testing.T) {
	s := New(testList(t))
	assert.Zero(t, s.Version())

	require.NoError(t, s.Do(func(l *pseudo.EngineList) error {
		return l.Geometry().SetAxisValue("tth", 1)
	}))
	assert.EqualValues(t, 1, s.Version())

	boom := errors.New("boom")
	require.ErrorIs(t, s.Do(func(*pseudo.EngineList) error { return boom }), boom)
	assert.EqualValues(t, 1, s.Version())

	require.NoError(t, s.View(func(l *pseudo.EngineList) error {
		_, err := l.Get("q")
		return err
	}))
	assert.EqualValues(t, 1, s.Version())
}

func TestClone_Detached(t *testing.T) {
	s := New(testList(t))
	c := s.Clone()
	require.NoError(t, c.Geometry().SetAxisValue("tth", 1))
	require.NoError(t, s.View(func(l *pseudo.EngineList) error {
		assert.Zero(t, l.Geometry().Values()[3])
		return nil
	}))
}

func TestReplace(t *testing.T) {
	s := New(testList(t))
	next := testList(t)
	s.Replace(next)
	assert.EqualValues(t, 1, s.Version())
	require.NoError(t, s.View(func(l *pseudo.EngineList) error {
		assert.Same(t, next, l)
		return nil
	}))
}

func TestDo_Concurrent(t *testing.T) {
	s := New(testList(t))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(func(l *pseudo.EngineList) error {
				_, err := l.Set("q", 1)
				return err
			})
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 16, s.Version())
}
