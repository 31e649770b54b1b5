package factorgo_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factorgo"
	"github.com/hupe1980/factorgo/geometry"
	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/noise"
	"github.com/hupe1980/factorgo/solver"
)

// poseChain sets up a three-pose odometry problem: a prior anchoring the
// first pose and two relative motion constraints of one unit forward
// with a quarter turn.
func poseChain(t *testing.T) ([]graph.Factor, map[graph.Variable][]float64, []*geometry.Pose2Variable) {
	t.Helper()

	x0 := geometry.NewPose2Variable()
	x1 := geometry.NewPose2Variable()
	x2 := geometry.NewPose2Variable()

	unit := noise.NewUnit(3)
	motion := geometry.NewPose2(1, 0, math.Pi/2)

	prior, err := geometry.NewPose2Prior(x0, geometry.NewPose2(0, 0, 0), unit)
	require.NoError(t, err)
	b01, err := geometry.NewPose2Between(x0, x1, motion, unit)
	require.NoError(t, err)
	b12, err := geometry.NewPose2Between(x1, x2, motion, unit)
	require.NoError(t, err)

	storage := func(p geometry.Pose2) []float64 {
		s := make([]float64, 4)
		p.Storage(s)
		return s
	}
	initial := map[graph.Variable][]float64{
		x0: storage(geometry.NewPose2(0.3, -0.2, 0.1)),
		x1: storage(geometry.NewPose2(0.8, 0.4, 1.2)),
		x2: storage(geometry.NewPose2(1.2, 1.3, 2.9)),
	}

	return []graph.Factor{prior, b01, b12}, initial, []*geometry.Pose2Variable{x0, x1, x2}
}

func TestSolvePoseChain(t *testing.T) {
	factors, initial, vars := poseChain(t)

	solution, state, err := factorgo.Solve(context.Background(), factors, initial, nil)
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.Less(t, state.Cost, 1e-10)

	// Dead reckoning from the anchored origin.
	want := []geometry.Pose2{
		geometry.NewPose2(0, 0, 0),
		geometry.NewPose2(1, 0, math.Pi/2),
		geometry.NewPose2(1, 1, math.Pi),
	}
	for i, v := range vars {
		x, err := solution.Get(v)
		require.NoError(t, err)
		got := geometry.Pose2FromStorage(x)
		assert.InDelta(t, want[i].X, got.X, 1e-5, "pose %d x", i)
		assert.InDelta(t, want[i].Y, got.Y, 1e-5, "pose %d y", i)
		assert.InDelta(t, 0, math.Abs(geometry.NewPose2(0, 0, want[i].Theta()).Inverse().Mul(got).Theta()), 1e-5, "pose %d heading", i)
	}
}

func TestSolveWithExplicitSolver(t *testing.T) {
	factors, initial, _ := poseChain(t)

	gn := solver.NewGaussNewton()
	_, state, err := factorgo.Solve(context.Background(), factors, initial, gn,
		factorgo.WithParallelism(2),
		factorgo.WithLogger(factorgo.NoopLogger()),
	)
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.Less(t, state.Cost, 1e-10)
}

func TestSolveMissingInitialValue(t *testing.T) {
	factors, initial, vars := poseChain(t)
	delete(initial, vars[1])

	_, _, err := factorgo.Solve(context.Background(), factors, initial, nil)
	assert.ErrorIs(t, err, graph.ErrUnknownVariable)
}

func TestSolveEmptyGraph(t *testing.T) {
	_, _, err := factorgo.Solve(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, graph.ErrEmptyGraph)
}
