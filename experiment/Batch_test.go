package experiment

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/arpl/agent"
	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/arpl"
	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/trpo"
	"github.com/samuelfneumann/arpl/buffer/gae"
	"github.com/samuelfneumann/arpl/buffer/trajectory"
	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/environment/envconfig"
	"github.com/samuelfneumann/arpl/experiment/checkpointer"
	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/mat"
)

// fakeEnv is a one dimensional environment whose observation on step n
// of episode k is 100k + n
type fakeEnv struct {
	length  int // Steps per episode, 0 for unbounded
	reward  func(episode int) float64
	episode int
	current ts.TimeStep
	actions []float64
}

func (f *fakeEnv) Reset() (ts.TimeStep, error) {
	f.episode++
	obs := mat.NewVecDense(1, []float64{float64(100 * f.episode)})
	f.current = ts.New(ts.First, 0, 1, obs, 0)
	return f.current, nil
}

func (f *fakeEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	f.actions = append(f.actions, a.AtVec(0))

	n := f.current.Number + 1
	t := ts.Mid
	if f.length > 0 && n >= f.length {
		t = ts.Last
	}
	obs := mat.NewVecDense(1, []float64{float64(100*f.episode + n)})
	f.current = ts.New(t, f.reward(f.episode), 1, obs, n)
	return f.current, f.current.Last(), nil
}

func (f *fakeEnv) CurrentTimeStep() ts.TimeStep {
	return f.current
}

func (f *fakeEnv) spec(t environment.SpecType) environment.Spec {
	return environment.NewSpec(mat.NewVecDense(1, nil), t,
		mat.NewVecDense(1, []float64{math.Inf(-1)}),
		mat.NewVecDense(1, []float64{math.Inf(1)}), environment.Continuous)
}

func (f *fakeEnv) DiscountSpec() environment.Spec {
	return f.spec(environment.Discount)
}

func (f *fakeEnv) ObservationSpec() environment.Spec {
	return f.spec(environment.Observation)
}

func (f *fakeEnv) ActionSpec() environment.Spec {
	return f.spec(environment.Action)
}

// fakeAgent always selects the action 0.5 and records everything it
// is given
type fakeAgent struct {
	seen      []float64
	batches   []trajectory.Batch
	updateErr error
	policy    []float64
}

func (f *fakeAgent) SelectAction(step ts.TimeStep) (*mat.VecDense, error) {
	f.seen = append(f.seen, step.Observation.AtVec(0))
	return mat.NewVecDense(1, []float64{0.5}), nil
}

func (f *fakeAgent) Update(b trajectory.Batch) error {
	f.batches = append(f.batches, b)
	if f.updateErr != nil {
		return f.updateErr
	}
	f.policy = []float64{float64(len(f.batches))}
	return nil
}

func (f *fakeAgent) InputGrad(state []float64) ([]float64, error) {
	return []float64{1}, nil
}

func (f *fakeAgent) PolicyParams() []float64 {
	return append([]float64(nil), f.policy...)
}

func (f *fakeAgent) SetPolicyParams(θ []float64) error {
	f.policy = append([]float64(nil), θ...)
	return nil
}

func (f *fakeAgent) ValueParams() []float64 {
	return []float64{-1}
}

func (f *fakeAgent) SetValueParams([]float64) error {
	return nil
}

type memStore struct {
	saved []checkpointer.Checkpoint
}

func (m *memStore) Save(c checkpointer.Checkpoint) error {
	m.saved = append(m.saved, c)
	return nil
}

func (m *memStore) Load() (checkpointer.Checkpoint, error) {
	if len(m.saved) == 0 {
		return checkpointer.Checkpoint{}, errors.New("empty")
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memStore) Close() error { return nil }

func constant(r float64) func(int) float64 {
	return func(int) float64 { return r }
}

func testConfig() Config {
	return Config{
		BatchSize:          6,
		MaxEpisodeSteps:    100,
		Tol:                2,
		InitialReward:      1000,
		Patience:           5,
		CheckpointInterval: 100,
		LogInterval:        1,
		ARPL:               arpl.Config{Phi: 1, Epsilon: 0.5},
	}
}

func newTestBatch(t *testing.T, e *fakeEnv, a *fakeAgent, c Config,
	store checkpointer.Store) *Batch {
	p, err := arpl.New(c.ARPL, a, 1)
	if err != nil {
		t.Fatalf("new perturber: %v", err)
	}

	var cp *checkpointer.Checkpointer
	if store != nil {
		cp, err = checkpointer.New(store, checkpointer.NewStability(c.Patience),
			checkpointer.NewNStep(c.CheckpointInterval))
		if err != nil {
			t.Fatalf("new checkpointer: %v", err)
		}
	}

	b, err := NewBatch(e, a, p, cp, c, nil)
	if err != nil {
		t.Fatalf("newBatch: %v", err)
	}
	return b
}

func TestPerturbationDecoupling(t *testing.T) {
	e := &fakeEnv{length: 3, reward: constant(1)}
	a := &fakeAgent{}
	b := newTestBatch(t, e, a, testConfig(), nil)

	summary, err := b.RunIteration()
	if err != nil {
		t.Fatalf("runIteration: %v", err)
	}
	if summary.Steps != 6 || summary.Episodes != 2 {
		t.Fatalf("summary: want 6 steps in 2 episodes, have %+v", summary)
	}

	// The agent acts in the unperturbed states
	wantSeen := []float64{100, 101, 102, 200, 201, 202}
	for i, want := range wantSeen {
		if a.seen[i] != want {
			t.Errorf("state acted in %v:\n\twant(%v)\n\thave(%v)", i, want,
				a.seen[i])
		}
	}
	for i, action := range e.actions {
		if action != 0.5 {
			t.Errorf("action %v:\n\twant(0.5)\n\thave(%v)", i, action)
		}
	}

	batch := a.batches[0]
	wantMasks := []float64{1, 1, 0, 1, 1, 0}
	for i := 0; i < batch.Len(); i++ {
		// Only the stored state is perturbed, by ε∇ = 0.5
		if have, want := batch.State(i)[0], wantSeen[i]+0.5; have != want {
			t.Errorf("stored state %v:\n\twant(%v)\n\thave(%v)", i, want, have)
		}
		if have, want := batch.NextState(i)[0], wantSeen[i]+1; have != want {
			t.Errorf("next state %v:\n\twant(%v)\n\thave(%v)", i, want, have)
		}
		if batch.Masks[i] != wantMasks[i] {
			t.Errorf("mask %v:\n\twant(%v)\n\thave(%v)", i, wantMasks[i],
				batch.Masks[i])
		}
		if batch.Action(i)[0] != 0.5 {
			t.Errorf("stored action %v:\n\twant(0.5)\n\thave(%v)", i,
				batch.Action(i)[0])
		}
	}
}

func TestNoPerturbation(t *testing.T) {
	c := testConfig()
	c.ARPL.Phi = 0
	a := &fakeAgent{}
	b := newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a, c, nil)

	if _, err := b.RunIteration(); err != nil {
		t.Fatalf("runIteration: %v", err)
	}
	batch := a.batches[0]
	for i := 0; i < batch.Len(); i++ {
		if batch.State(i)[0] != a.seen[i] {
			t.Errorf("stored state %v:\n\twant(%v)\n\thave(%v)", i, a.seen[i],
				batch.State(i)[0])
		}
	}
}

func TestEpisodeCap(t *testing.T) {
	c := testConfig()
	c.BatchSize = 8
	c.MaxEpisodeSteps = 4
	a := &fakeAgent{}
	b := newTestBatch(t, &fakeEnv{reward: constant(1)}, a, c, nil)

	summary, err := b.RunIteration()
	if err != nil {
		t.Fatalf("runIteration: %v", err)
	}

	wantMasks := []float64{1, 1, 1, 0, 1, 1, 1, 0}
	masks := a.batches[0].Masks
	if len(masks) != len(wantMasks) {
		t.Fatalf("batch length:\n\twant(%v)\n\thave(%v)", len(wantMasks),
			len(masks))
	}
	for i := range wantMasks {
		if masks[i] != wantMasks[i] {
			t.Errorf("mask %v:\n\twant(%v)\n\thave(%v)", i, wantMasks[i],
				masks[i])
		}
	}

	if summary.Episodes != 2 || summary.AverageReward != 4 ||
		summary.LastReward != 4 || summary.AverageLength != 4 {
		t.Errorf("summary: have %+v", summary)
	}
	if summary.Truncated != 2 {
		t.Errorf("truncated:\n\twant(2)\n\thave(%v)", summary.Truncated)
	}
}

func TestBatchSizeCompletesEpisodes(t *testing.T) {
	c := testConfig()
	c.BatchSize = 7
	a := &fakeAgent{}
	b := newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a, c, nil)

	summary, err := b.RunIteration()
	if err != nil {
		t.Fatalf("runIteration: %v", err)
	}
	if summary.Steps != 9 || summary.Episodes != 3 {
		t.Errorf("summary: want 9 steps in 3 episodes, have %+v", summary)
	}
	if summary.Truncated != 0 {
		t.Errorf("truncated:\n\twant(0)\n\thave(%v)", summary.Truncated)
	}
}

func TestIterationCheckpoints(t *testing.T) {
	alternating := func(episode int) float64 {
		if episode%2 == 0 {
			return 1
		}
		return 3
	}

	tests := []struct {
		name   string
		reward func(int) float64
		reason checkpointer.Reason
		saves  int
	}{
		{"unstable", alternating, checkpointer.Periodic, 1},
		{"stable", constant(1), checkpointer.Stability, 95},
	}

	for _, test := range tests {
		c := testConfig()
		c.BatchSize = 2
		c.MaxIterations = 100

		store := &memStore{}
		a := &fakeAgent{}
		b := newTestBatch(t, &fakeEnv{length: 2, reward: test.reward}, a, c,
			store)

		var last Summary
		for i := 0; i < c.MaxIterations; i++ {
			var err error
			if last, err = b.RunIteration(); err != nil {
				t.Fatalf("%v: runIteration: %v", test.name, err)
			}
		}

		if !last.Checkpointed || last.Reason != test.reason {
			t.Errorf("%v: iteration 100 checkpoint:\n\twant(true, %v)"+
				"\n\thave(%v, %v)", test.name, test.reason, last.Checkpointed,
				last.Reason)
		}
		if len(store.saved) != test.saves {
			t.Errorf("%v: saves:\n\twant(%v)\n\thave(%v)", test.name,
				test.saves, len(store.saved))
		}

		cp, _ := store.Load()
		if cp.Iteration != 100 || len(cp.Rewards) != 100 {
			t.Errorf("%v: checkpoint: have iteration %v with %v rewards",
				test.name, cp.Iteration, len(cp.Rewards))
		}
		if len(cp.Policy) != 1 || cp.Policy[0] != 100 {
			t.Errorf("%v: checkpoint policy:\n\twant([100])\n\thave(%v)",
				test.name, cp.Policy)
		}
	}
}

func TestDegenerateBatch(t *testing.T) {
	degenerate := &gae.DegenerateBatchError{
		Op:  "update",
		Err: gae.ErrZeroVariance,
	}

	c := testConfig()
	c.MaxIterations = 3
	a := &fakeAgent{updateErr: degenerate}
	b := newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a, c, nil)

	err := b.Run(context.Background())
	if !gae.IsDegenerateBatch(err) {
		t.Fatalf("run: want(*gae.DegenerateBatchError) have(%v)", err)
	}
	if b.State().Iteration != 1 {
		t.Errorf("iteration:\n\twant(1)\n\thave(%v)", b.State().Iteration)
	}

	c.SkipDegenerate = true
	a = &fakeAgent{updateErr: degenerate}
	b = newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a, c, nil)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(b.State().Rewards) != 3 {
		t.Errorf("rewards:\n\twant(3)\n\thave(%v)", len(b.State().Rewards))
	}

	// Other errors are never skipped
	a = &fakeAgent{updateErr: errors.New("line search failed")}
	b = newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a, c, nil)
	if err := b.Run(context.Background()); err == nil {
		t.Errorf("run: expected error")
	}
}

func TestRunCancelled(t *testing.T) {
	a := &fakeAgent{}
	b := newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a,
		testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("run:\n\twant(%v)\n\thave(%v)", context.Canceled, err)
	}
	if b.State().Iteration != 0 || b.Phase() != Idle {
		t.Errorf("run: iterations ran after cancellation")
	}
}

func TestCurriculumUpdatesPerturber(t *testing.T) {
	c := testConfig()
	c.ARPL = arpl.Config{Phi: 0, Epsilon: 0.5, CurriculumInterval: 2,
		CurriculumStep: 0.25}
	c.MaxIterations = 4
	a := &fakeAgent{}
	b := newTestBatch(t, &fakeEnv{length: 3, reward: constant(1)}, a, c, nil)

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if b.perturber.Phi() != 0.5 || b.State().Phi != 0.5 {
		t.Errorf("phi:\n\twant(0.5)\n\thave(%v, %v)", b.perturber.Phi(),
			b.State().Phi)
	}

	for _, batch := range a.batches[:2] {
		for i := 0; i < batch.Len(); i++ {
			if batch.State(i)[0] != batch.NextState(i)[0]-1 {
				t.Fatalf("state perturbed with phi 0")
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("validate: default config invalid: %v", err)
	}

	invalid := []func(*Config){
		func(c *Config) { c.BatchSize = 0 },
		func(c *Config) { c.MaxEpisodeSteps = -1 },
		func(c *Config) { c.LogInterval = 0 },
		func(c *Config) { c.Agent = agent.TypedConfig{} },
		func(c *Config) { c.Env.Environment = "MountainCar" },
		func(c *Config) { c.ARPL.Phi = -1 },
		func(c *Config) { c.Checkpoint.Store = "s3" },
	}
	for i, modify := range invalid {
		c := DefaultConfig()
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("validate: expected error for invalid config %v", i)
		}
	}
}

func TestCreateExp(t *testing.T) {
	dir := t.TempDir()

	agentConfig := trpo.DefaultConfig()
	agentConfig.Hidden = []int{8}
	agentConfig.ValueIters = 5

	c := DefaultConfig()
	c.BatchSize = 100
	c.MaxIterations = 2
	c.CheckpointInterval = 1
	c.ARPL.Epsilon = 0.01
	c.Env = envconfig.Config{
		Environment:   envconfig.Pendulum,
		EpisodeCutoff: 50,
		Discount:      1,
		NormalizeClip: 5,
	}
	c.Agent = agent.NewTypedConfig(agentConfig)
	c.Checkpoint = checkpointer.Config{
		Store:  checkpointer.File,
		Dir:    dir,
		Naming: checkpointer.Overwrite,
	}

	b, err := c.CreateExp(nil)
	if err != nil {
		t.Fatalf("createExp: %v", err)
	}
	defer b.Close()

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	store, err := checkpointer.NewFileStore(dir,
		checkpointer.Tag(c.ARPL.Epsilon, c.EnvName()), checkpointer.Overwrite)
	if err != nil {
		t.Fatalf("newFileStore: %v", err)
	}
	cp, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp.Iteration != 2 || len(cp.Rewards) != 2 {
		t.Errorf("checkpoint: have iteration %v with %v rewards",
			cp.Iteration, len(cp.Rewards))
	}

	params := b.agent.(agent.Parameterized).PolicyParams()
	if len(cp.Policy) != len(params) {
		t.Fatalf("checkpoint policy:\n\twant(%v params)\n\thave(%v)",
			len(params), len(cp.Policy))
	}
	for i := range params {
		if cp.Policy[i] != params[i] {
			t.Fatalf("checkpoint policy differs from agent at %v", i)
		}
	}

	policy, _, _, _ := store.Paths()
	if filepath.Base(policy) != "Weights_policy_0.01Pendulum.bin" {
		t.Errorf("policy file:\n\twant(Weights_policy_0.01Pendulum.bin)"+
			"\n\thave(%v)", filepath.Base(policy))
	}
}

func TestCreateExpLogsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	agentConfig := trpo.DefaultConfig()
	agentConfig.Hidden = []int{4}
	agentConfig.ValueIters = 2

	c := DefaultConfig()
	c.BatchSize = 20
	c.MaxIterations = 1
	c.CheckpointInterval = 1
	c.Env.EpisodeCutoff = 20
	c.Agent = agent.NewTypedConfig(agentConfig)
	c.Checkpoint = checkpointer.Config{Store: checkpointer.SQLite, Path: path}

	var out bytes.Buffer
	b, err := c.CreateExp(log.New(&out, "", 0))
	if err != nil {
		t.Fatalf("createExp: %v", err)
	}
	defer b.Close()

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	run, err := checkpointer.LatestRun(path)
	if err != nil {
		t.Fatalf("latestRun: %v", err)
	}
	if !strings.Contains(out.String(), "under run "+run) {
		t.Errorf("createExp: run %v not logged in\n%v", run, out.String())
	}
}
