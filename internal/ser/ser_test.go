package ser

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomConnectome builds an n x n connectome with roughly density non-zero
// weights drawn from [0, 1).
func randomConnectome(n int, density float64, seed int64) Connectome {
	r := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			if r.Float64() < density {
				rows[i][j] = r.Float64()
			}
		}
	}
	return Dense(rows)
}

func zeroConnectome(n int) Connectome {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
	}
	return Dense(rows)
}

func defaultParams() Params {
	return Params{
		Steps:           300,
		Transient:       50,
		SpontaneousProb: 0.01,
		RecoveryProb:    0.2,
		PropActive:      0.1,
		Threshold:       0.3,
		Seed:            124,
	}
}

func chain() Connectome {
	return Dense([][]float64{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	})
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		ok     bool
	}{
		{"defaults", func(*Params) {}, true},
		{"transient zero", func(p *Params) { p.Transient = 0 }, true},
		{"transient equals steps", func(p *Params) { p.Transient = p.Steps }, false},
		{"transient above steps", func(p *Params) { p.Transient = p.Steps + 1 }, false},
		{"negative transient", func(p *Params) { p.Transient = -1 }, false},
		{"zero steps", func(p *Params) { p.Steps = 0; p.Transient = 0 }, false},
		{"ri above one", func(p *Params) { p.SpontaneousProb = 1.01 }, false},
		{"ri negative", func(p *Params) { p.SpontaneousProb = -0.1 }, false},
		{"rf NaN", func(p *Params) { p.RecoveryProb = math.NaN() }, false},
		{"prop_active above one", func(p *Params) { p.PropActive = 2 }, false},
		{"probabilities at bounds", func(p *Params) { p.SpontaneousProb, p.RecoveryProb, p.PropActive = 0, 1, 1 }, true},
		{"infinite threshold", func(p *Params) { p.Threshold = math.Inf(1) }, false},
		{"negative threshold", func(p *Params) { p.Threshold = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfig)
			}
		})
	}
}

func TestCheckConnectome(t *testing.T) {
	assert.NoError(t, CheckConnectome(chain()))

	err := CheckConnectome(Dense([][]float64{{0, 1}, {1}}))
	assert.ErrorIs(t, err, ErrConfig)

	err = CheckConnectome(Dense(nil))
	assert.ErrorIs(t, err, ErrConfig)

	err = CheckConnectome(Dense([][]float64{{0, math.NaN()}, {0, 0}}))
	assert.ErrorIs(t, err, ErrNumeric)

	err = CheckConnectome(Dense([][]float64{{0, math.Inf(1)}, {0, 0}}))
	assert.ErrorIs(t, err, ErrNumeric)

	err = CheckConnectome(Dense([][]float64{{0, -0.5}, {0, 0}}))
	assert.ErrorIs(t, err, ErrNumeric)
}

func TestRun_ConfigErrorsBeforeAnyStep(t *testing.T) {
	calls := 0
	obs := ObserverFunc(func(StepStats) { calls++ })

	p := defaultParams()
	p.Transient = p.Steps
	m, err := Run(context.Background(), p, chain(), WithObserver(obs))
	require.ErrorIs(t, err, ErrConfig)
	assert.Nil(t, m)
	assert.Zero(t, calls)

	m, err = Run(context.Background(), defaultParams(), Dense([][]float64{{0, 1, 0}, {0, 0, 0}}))
	require.ErrorIs(t, err, ErrConfig)
	assert.Nil(t, m)

	m, err = Run(context.Background(), defaultParams(), Dense([][]float64{{math.NaN()}}))
	require.ErrorIs(t, err, ErrNumeric)
	assert.Nil(t, m)
	assert.False(t, errors.Is(err, ErrConfig))
}

func TestRun_Deterministic(t *testing.T) {
	c := randomConnectome(60, 0.2, 7)
	p := defaultParams()

	a, err := Run(context.Background(), p, c)
	require.NoError(t, err)
	b, err := Run(context.Background(), p, c)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	p.Seed++
	d, err := Run(context.Background(), p, c)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, d.Data, "different seeds should give different trajectories")
}

func TestRun_Shape(t *testing.T) {
	c := randomConnectome(17, 0.3, 1)
	p := defaultParams()
	p.Steps, p.Transient = 40, 13

	m, err := Run(context.Background(), p, c)
	require.NoError(t, err)
	assert.Equal(t, 27, m.Rows)
	assert.Equal(t, 17, m.Cols)
	assert.Len(t, m.Data, 27*17)
}

func TestRun_StatesAreExhaustive(t *testing.T) {
	m, err := Run(context.Background(), defaultParams(), randomConnectome(40, 0.25, 3))
	require.NoError(t, err)
	for i, v := range m.Data {
		if v != OutputQuiescent && v != OutputExcited && v != OutputRefractory {
			t.Fatalf("cell %d holds unexpected value %d", i, v)
		}
	}
}

func TestRun_ExcitedDecaysToRefractory(t *testing.T) {
	p := defaultParams()
	p.Transient = 0
	m, err := Run(context.Background(), p, randomConnectome(50, 0.2, 11))
	require.NoError(t, err)

	excited := 0
	for step := 0; step+1 < m.Rows; step++ {
		for n := 0; n < m.Cols; n++ {
			if m.At(step, n) == OutputExcited {
				excited++
				require.Equalf(t, OutputRefractory, m.At(step+1, n), "node %d excited at %d", n, step)
			}
		}
	}
	assert.Positive(t, excited, "trajectory should contain excitations")
}

func TestRun_NoCoupling(t *testing.T) {
	p := defaultParams()
	p.Transient = 0
	p.SpontaneousProb = 0
	p.PropActive = 0.3
	m, err := Run(context.Background(), p, zeroConnectome(30))
	require.NoError(t, err)

	seeded := 0
	for n := 0; n < m.Cols; n++ {
		if m.At(0, n) == OutputExcited {
			seeded++
		}
	}
	assert.Equal(t, 9, seeded)

	for step := 1; step < m.Rows; step++ {
		for n := 0; n < m.Cols; n++ {
			require.NotEqualf(t, OutputExcited, m.At(step, n), "node %d activated at step %d", n, step)
		}
	}
}

func TestRun_CertainRecovery(t *testing.T) {
	p := defaultParams()
	p.Transient = 0
	p.RecoveryProb = 1
	m, err := Run(context.Background(), p, randomConnectome(40, 0.3, 5))
	require.NoError(t, err)

	for step := 0; step+1 < m.Rows; step++ {
		for n := 0; n < m.Cols; n++ {
			if m.At(step, n) == OutputRefractory {
				require.Equalf(t, OutputQuiescent, m.At(step+1, n), "node %d refractory at %d", n, step)
			}
		}
	}
}

func TestStep_ChainScenario(t *testing.T) {
	p := Params{Steps: 5, Threshold: 0.5, RecoveryProb: 1}
	rng := NewRand(1)

	want := []Snapshot{
		{Excited, Quiescent, Quiescent},
		{Refractory, Excited, Quiescent},
		{Quiescent, Refractory, Excited},
		{Quiescent, Quiescent, Refractory},
		{Quiescent, Quiescent, Quiescent},
	}
	cur := want[0]
	for step := 1; step < len(want); step++ {
		cur = Step(cur, chain(), p, rng)
		assert.Equalf(t, want[step], cur, "step %d", step)
	}
}

func TestRun_ChainScenario(t *testing.T) {
	// Find a seed whose initial draw excites node 0.
	var seed int64
	for ; seed < 1000; seed++ {
		if Initialize(3, 1.0/3, NewRand(seed))[0] == Excited {
			break
		}
	}
	require.Less(t, seed, int64(1000))

	p := Params{Steps: 5, Transient: 0, RecoveryProb: 1, PropActive: 1.0 / 3, Threshold: 0.5, Seed: seed}
	m, err := Run(context.Background(), p, chain())
	require.NoError(t, err)

	want := [][]int8{
		{1, 0, 0},
		{2, 1, 0},
		{0, 2, 1},
		{0, 0, 2},
		{0, 0, 0},
	}
	for step, row := range want {
		assert.Equalf(t, row, m.Row(step), "step %d", step)
	}
}

func TestStep_DoesNotMutateInput(t *testing.T) {
	c := randomConnectome(30, 0.3, 9)
	cur := Initialize(30, 0.5, NewRand(2))
	before := cur.Clone()

	next := Step(cur, c, defaultParams(), NewRand(3))
	assert.Equal(t, before, cur)
	assert.NotSame(t, &cur[0], &next[0])
}

func TestStep_NetworkDriveIgnoresSpontaneousDraw(t *testing.T) {
	// Node 1 receives weight 1 from node 0; with ri = 0 only the network
	// condition can activate it.
	p := Params{Threshold: 0.5}
	next := Step(Snapshot{Excited, Quiescent, Quiescent}, chain(), p, NewRand(4))
	assert.Equal(t, Excited, next[1])

	// Input equal to the threshold does not activate.
	p.Threshold = 1
	next = Step(Snapshot{Excited, Quiescent, Quiescent}, chain(), p, NewRand(4))
	assert.Equal(t, Quiescent, next[1])

	// ri = 1 activates every quiescent node regardless of input.
	p.SpontaneousProb = 1
	next = Step(Snapshot{Quiescent, Quiescent, Quiescent}, zeroConnectome(3), p, NewRand(4))
	assert.Equal(t, Snapshot{Excited, Excited, Excited}, next)
}

func TestInitialize_Fraction(t *testing.T) {
	tests := []struct {
		n    int
		p    float64
		want int
	}{
		{100, 0.01, 1},
		{100, 0.25, 25},
		{10, 0.33, 3},
		{10, 0.37, 4},
		{7, 0, 0},
		{7, 1, 7},
		{998, 0.01, 10},
		{50, 0.01, 0},
		{250, 0.01, 2},
		{450, 0.01, 4},
		{150, 0.01, 2},
	}
	for _, tt := range tests {
		snap := Initialize(tt.n, tt.p, NewRand(99))
		c := snap.Counts()
		assert.Equalf(t, tt.want, c.Excited, "n=%d p=%v", tt.n, tt.p)
		assert.Zero(t, c.Refractory)
		assert.Equal(t, tt.n-tt.want, c.Quiescent)
	}
}

func TestStepParallel_IndependentOfWorkerCount(t *testing.T) {
	c := randomConnectome(200, 0.05, 21)
	p := defaultParams()
	p.Transient = 10

	base, err := Run(context.Background(), p, c, WithWorkers(1))
	require.NoError(t, err)
	for _, k := range []int{2, 3, 8, 500} {
		m, err := Run(context.Background(), p, c, WithWorkers(k))
		require.NoError(t, err)
		assert.Equalf(t, base.Data, m.Data, "workers=%d", k)
	}
}

func TestSimulator_ObserverAndStepping(t *testing.T) {
	var stats []StepStats
	p := defaultParams()
	p.Steps, p.Transient = 10, 4

	sim, err := NewSimulator(randomConnectome(20, 0.3, 2), p, WithObserver(ObserverFunc(func(s StepStats) {
		stats = append(stats, s)
	})))
	require.NoError(t, err)
	assert.Equal(t, 0, sim.StepIndex())
	require.Len(t, stats, 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, sim.Advance(context.Background()))
	}
	assert.Equal(t, 5, sim.StepIndex())
	require.Len(t, stats, 6)
	assert.False(t, stats[3].Recorded)
	assert.True(t, stats[4].Recorded)

	cur := sim.Current()
	c := cur.Counts()
	assert.Equal(t, 20, c.Quiescent+c.Excited+c.Refractory)
	assert.Equal(t, stats[5].Counts, c)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := Run(ctx, defaultParams(), chain())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m)
}

func TestEncodeDecode(t *testing.T) {
	for _, st := range []State{Quiescent, Excited, Refractory} {
		got, err := Decode(Encode(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	assert.Equal(t, OutputRefractory, Encode(Refractory))
	_, err := Decode(-1)
	assert.Error(t, err)
}

func TestActivationMatrix_Activity(t *testing.T) {
	m := &ActivationMatrix{Rows: 2, Cols: 2, Data: []int8{
		OutputExcited, OutputQuiescent,
		OutputExcited, OutputRefractory,
	}}
	assert.InDelta(t, 0.5, m.Activity(), 1e-12)
	assert.Equal(t, []float64{1, 0}, m.NodeActivity())

	empty := NewActivationMatrix(0, 3)
	assert.Zero(t, empty.Activity())
	assert.Equal(t, []float64{0, 0, 0}, empty.NodeActivity())
}
