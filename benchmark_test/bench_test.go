package benchmark_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/hupe1980/factorgo"
	"github.com/hupe1980/factorgo/geometry"
	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/noise"
	"github.com/hupe1980/factorgo/solver"
)

// poseChainFixture builds an n-pose odometry chain with noisy
// dead-reckoning initialization. The RNG is seeded so every benchmark
// run sees the same problem.
func poseChainFixture(n int) ([]graph.Factor, map[graph.Variable][]float64) {
	rng := rand.New(rand.NewSource(42))

	poses := make([]*geometry.Pose2Variable, n)
	for i := range poses {
		poses[i] = geometry.NewPose2Variable()
	}

	priorNoise, err := noise.NewIsotropic(3, 0.01)
	if err != nil {
		panic(err)
	}
	odoNoise, err := noise.NewDiagonal([]float64{0.1, 0.1, 0.05})
	if err != nil {
		panic(err)
	}

	prior, err := geometry.NewPose2Prior(poses[0], geometry.NewPose2(0, 0, 0), priorNoise)
	if err != nil {
		panic(err)
	}
	factors := []graph.Factor{prior}

	motion := geometry.NewPose2(1, 0, 0.02)
	truth := geometry.NewPose2(0, 0, 0)

	initial := map[graph.Variable][]float64{}
	store := func(v *geometry.Pose2Variable, p geometry.Pose2) {
		s := make([]float64, 4)
		p.Storage(s)
		initial[v] = s
	}
	store(poses[0], truth)

	for i := 0; i+1 < n; i++ {
		between, err := geometry.NewPose2Between(poses[i], poses[i+1], motion, odoNoise)
		if err != nil {
			panic(err)
		}
		factors = append(factors, between)

		truth = truth.Mul(motion)
		jitter := geometry.NewPose2(
			0.05*rng.NormFloat64(),
			0.05*rng.NormFloat64(),
			0.02*rng.NormFloat64(),
		)
		store(poses[i+1], truth.Mul(jitter))
	}

	return factors, initial
}

func buildGraph(b *testing.B, factors []graph.Factor, parallelism int) *graph.Graph {
	b.Helper()

	g, err := graph.New(factors, graph.WithParallelism(parallelism))
	if err != nil {
		b.Fatalf("build graph: %v", err)
	}
	return g
}

func assignInitial(b *testing.B, g *graph.Graph, initial map[graph.Variable][]float64) *graph.Assignments {
	b.Helper()

	a := graph.NewAssignments(g.Metadata())
	for _, v := range g.Metadata().Variables() {
		if err := a.Set(v, initial[v]); err != nil {
			b.Fatalf("set initial: %v", err)
		}
	}
	return a
}

func BenchmarkComputeCost(b *testing.B) {
	sizes := []struct {
		name string
		n    int
	}{
		{"Chain100", 100},
		{"Chain1000", 1000},
	}

	for _, size := range sizes {
		factors, initial := poseChainFixture(size.n)

		for _, parallelism := range []int{1, 4} {
			name := size.name + "/Serial"
			if parallelism > 1 {
				name = size.name + "/Parallel4"
			}

			b.Run(name, func(b *testing.B) {
				g := buildGraph(b, factors, parallelism)
				a := assignInitial(b, g, initial)

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					cost, _ := g.ComputeCost(a)
					if math.IsNaN(cost) {
						b.Fatal("NaN cost")
					}
				}
			})
		}
	}
}

func BenchmarkWhitenedJacobian(b *testing.B) {
	factors, initial := poseChainFixture(1000)
	g := buildGraph(b, factors, 1)
	a := assignInitial(b, g, initial)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if m := g.WhitenedJacobian(a); m.NNZ() == 0 {
			b.Fatal("empty jacobian")
		}
	}
}

func BenchmarkSolve(b *testing.B) {
	solvers := []struct {
		name string
		make func() solver.Solver
	}{
		{"LevenbergMarquardt", func() solver.Solver { return solver.NewLevenbergMarquardt() }},
		{"GaussNewton", func() solver.Solver { return solver.NewGaussNewton() }},
		{"Dogleg", func() solver.Solver { return solver.NewDogleg() }},
	}

	factors, initial := poseChainFixture(200)
	ctx := context.Background()

	for _, tt := range solvers {
		b.Run(tt.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, state, err := factorgo.Solve(ctx, factors, initial, tt.make())
				if err != nil {
					b.Fatalf("solve: %v", err)
				}
				if !state.Done {
					b.Fatal("did not finish")
				}
			}
		})
	}
}
