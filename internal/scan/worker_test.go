package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func testList(t *testing.T) *pseudo.EngineList {
	t.Helper()
	g, err := geometry.New("E4CV")
	require.NoError(t, err)
	d := math.Pi / 180
	require.NoError(t, g.SetValues(30*d, 0, 0, 60*d))
	l, err := pseudo.NewEngineList(g, detector.New0D(), sample.New("test"))
	require.NoError(t, err)
	return l
}

func TestTrajectory(t *testing.T) {
	got, err := Trajectory([]float64{0, 0, 1}, []float64{1, 0, 3}, 3)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0, 0, 1}, {0.5, 0, 2}, {1, 0, 3}}, got)

	got, err = Trajectory([]float64{2}, []float64{5}, 1)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{2}}, got)

	_, err = Trajectory([]float64{0}, []float64{1}, 0)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = Trajectory([]float64{0}, []float64{1, 2}, 2)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRun_OrderedAndIndependent(t *testing.T) {
	l := testList(t)
	before := l.Geometry().Values()
	pool := NewWorkerPool(4, testLogger)

	points, err := pool.Run(context.Background(), l, Request{
		Engine: "hkl",
		From:   []float64{0, 0, 0.5},
		To:     []float64{0, 0, 1.7},
		Points: 9,
	})
	require.NoError(t, err)
	require.Len(t, points, 9)
	require.Equal(t, before, l.Geometry().Values())

	check := l.Clone()
	for i, p := range points {
		require.Equal(t, i, p.Index)
		require.NoError(t, p.Err, "point %d", i)
		require.GreaterOrEqual(t, p.Solutions, 1)
		require.NoError(t, check.Geometry().SetValues(p.Values...))
		hkl, err := check.Get("hkl")
		require.NoError(t, err)
		require.InDeltaSlice(t, p.Targets, hkl, 1e-6)
	}
}

func TestRun_UnreachablePointsCarryErrors(t *testing.T) {
	pool := NewWorkerPool(2, testLogger)
	points, err := pool.Run(context.Background(), testList(t), Request{
		Engine: "hkl",
		From:   []float64{0, 0, 1},
		To:     []float64{0, 0, 5},
		Points: 3,
	})
	require.NoError(t, err)
	require.NoError(t, points[0].Err)
	require.ErrorIs(t, points[2].Err, pseudo.ErrNoSolution)
}

func TestRun_SelectsMode(t *testing.T) {
	l := testList(t)
	pool := NewWorkerPool(2, testLogger)
	_, err := pool.Run(context.Background(), l, Request{
		Engine: "hkl", Mode: "constant_phi",
		From: []float64{0, 0, 1}, To: []float64{1, 0, 1}, Points: 2,
	})
	require.NoError(t, err)

	e, err := l.Engine("hkl")
	require.NoError(t, err)
	require.Equal(t, "bissector", e.Mode().Name(), "scan must not change the caller's mode")

	_, err = pool.Run(context.Background(), l, Request{
		Engine: "hkl", Mode: "nope",
		From: []float64{0, 0, 1}, To: []float64{1, 0, 1}, Points: 2,
	})
	require.ErrorIs(t, err, pseudo.ErrUnknownMode)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWorkerPool(2, testLogger).Run(ctx, testList(t), Request{
		Engine: "hkl",
		From:   []float64{0, 0, 1},
		To:     []float64{1, 0, 1},
		Points: 50,
	})
	require.True(t, errors.Is(err, context.Canceled))
}
