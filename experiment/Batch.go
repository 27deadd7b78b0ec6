package experiment

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/samuelfneumann/arpl/agent"
	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/arpl"
	"github.com/samuelfneumann/arpl/buffer/gae"
	"github.com/samuelfneumann/arpl/buffer/trajectory"
	env "github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/experiment/checkpointer"
	"github.com/samuelfneumann/arpl/experiment/tracker"
	ts "github.com/samuelfneumann/arpl/timestep"
	"github.com/samuelfneumann/arpl/utils/progressbar"
	"gonum.org/v1/gonum/mat"
)

// Phase is the phase of an iteration a Batch experiment is in
type Phase int

const (
	Idle Phase = iota
	Collecting
	Updating
	Checkpointing
)

func (p Phase) String() string {
	switch p {
	case Collecting:
		return "Collecting"
	case Updating:
		return "Updating"
	case Checkpointing:
		return "Checkpointing"
	default:
		return "Idle"
	}
}

// Summary summarizes a single iteration
type Summary struct {
	Iteration     int
	Steps         int
	Episodes      int
	LastReward    float64 // Return of the last episode of the iteration
	AverageReward float64 // Average episodic return of the iteration
	AverageLength float64
	PercentChange float64
	Phi           float64

	// Truncated is the number of episodes cut off by a step limit
	Truncated int

	// Skipped is true if the update was skipped because the batch was
	// degenerate
	Skipped bool

	Checkpointed bool
	Reason       checkpointer.Reason
}

// Batch is an Experiment which alternates between collecting a batch
// of transitions with the agent's current policy and updating the
// agent with the batch. States stored in the batch are perturbed by an
// arpl.Perturber, whose perturbation probability follows a Curriculum.
//
// Each iteration moves through the Collecting, Updating, and
// Checkpointing phases in order. Checkpoints are only saved once the
// Updating phase has finished.
type Batch struct {
	env          env.Environment
	agent        agent.Agent
	perturber    *arpl.Perturber
	checkpointer *checkpointer.Checkpointer
	curriculum   Curriculum

	state *TrainingState
	phase Phase

	batchSize       int
	maxEpisodeSteps int
	logInterval     int
	maxIterations   int
	skipDegenerate  bool

	obsDims int
	actDims int

	logger   *log.Logger
	progress io.Writer
}

// NewBatch returns a new Batch experiment. The checkpointer may be nil,
// in which case no checkpoints are saved. If logger is nil, nothing is
// logged. Only the settings of the iteration loop and the ARPL
// curriculum are read from c.
func NewBatch(e env.Environment, a agent.Agent, p *arpl.Perturber,
	cp *checkpointer.Checkpointer, c Config, logger *log.Logger) (*Batch,
	error) {
	if e == nil || a == nil || p == nil {
		return nil, fmt.Errorf("newBatch: environment, agent, and " +
			"perturber must not be nil")
	}
	if err := c.validateRun(); err != nil {
		return nil, fmt.Errorf("newBatch: %v", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Batch{
		env:          e,
		agent:        a,
		perturber:    p,
		checkpointer: cp,
		curriculum: Curriculum{
			Interval: c.ARPL.CurriculumInterval,
			Step:     c.ARPL.CurriculumStep,
		},
		state:           NewTrainingState(c.InitialReward, c.Tol, p.Phi()),
		batchSize:       c.BatchSize,
		maxEpisodeSteps: c.MaxEpisodeSteps,
		logInterval:     c.LogInterval,
		maxIterations:   c.MaxIterations,
		skipDegenerate:  c.SkipDegenerate,
		obsDims:         e.ObservationSpec().Shape.Len(),
		actDims:         e.ActionSpec().Shape.Len(),
		logger:          logger,
	}, nil
}

// ShowProgress displays the progress of collecting each batch to w.
// A nil w disables the display.
func (b *Batch) ShowProgress(w io.Writer) {
	b.progress = w
}

// State returns the training state
func (b *Batch) State() *TrainingState {
	return b.state
}

// Phase returns the phase the experiment is currently in
func (b *Batch) Phase() Phase {
	return b.phase
}

// Run runs iterations until the maximum number of iterations is
// reached, an iteration returns an error, or ctx is cancelled. If ctx
// is cancelled, Run returns ctx.Err() once the running iteration has
// finished.
func (b *Batch) Run(ctx context.Context) error {
	for b.maxIterations <= 0 || b.state.Iteration < b.maxIterations {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := b.RunIteration(); err != nil {
			return err
		}
	}
	return nil
}

// RunIteration runs a single iteration: a batch is collected, the
// agent is updated, and the training state is updated and possibly
// checkpointed
func (b *Batch) RunIteration() (Summary, error) {
	defer func() { b.phase = Idle }()
	iteration := b.state.Begin()

	b.phase = Collecting
	batch, summary, err := b.collect()
	if err != nil {
		return summary, fmt.Errorf("runIteration: iteration %v: %w",
			iteration, err)
	}
	summary.Iteration = iteration

	b.phase = Updating
	if err := b.agent.Update(batch); err != nil {
		if !b.skip(err) {
			return summary, fmt.Errorf("runIteration: iteration %v: %w",
				iteration, err)
		}
		b.logger.Printf("Iteration %v: skipping update: %v", iteration, err)
		summary.Skipped = true
	}

	pct, err := b.state.Record(summary.AverageReward)
	summary.PercentChange = pct
	if err != nil {
		if !b.skip(err) {
			return summary, fmt.Errorf("runIteration: iteration %v: %w",
				iteration, err)
		}
		b.logger.Printf("Iteration %v: %v", iteration, err)
	}

	if iteration%b.logInterval == 0 {
		b.logger.Printf("Iteration %v\tLast reward: %v\tAverage reward "+
			"%.2f\tPercentage Change %.2f", iteration, summary.LastReward,
			summary.AverageReward, pct)
		if summary.Truncated > 0 {
			b.logger.Printf("Iteration %v: %v of %v episodes truncated",
				iteration, summary.Truncated, summary.Episodes)
		}
	}

	if b.curriculum.Apply(b.state) {
		b.perturber.SetPhi(b.state.Phi)
		b.logger.Printf("Changing Φ to %v", b.state.Phi)
	}
	summary.Phi = b.perturber.Phi()

	if b.checkpointer == nil {
		return summary, nil
	}

	b.phase = Checkpointing
	reason, saved, err := b.checkpointer.Checkpoint(b.state.Status(),
		b.snapshot)
	if err != nil {
		return summary, fmt.Errorf("runIteration: iteration %v: %w",
			iteration, err)
	}
	if saved {
		b.logger.Printf("Saving weights at iteration %v (%v)", iteration,
			reason)
	}
	summary.Checkpointed = saved
	summary.Reason = reason

	return summary, nil
}

// skip returns whether the error err of an iteration should be logged
// and the iteration continued
func (b *Batch) skip(err error) bool {
	return b.skipDegenerate && gae.IsDegenerateBatch(err)
}

// collect runs episodes with the agent's current policy until at least
// batchSize steps have been taken. Each stored state is a possibly
// perturbed copy of the state the agent acted in.
func (b *Batch) collect() (trajectory.Batch, Summary, error) {
	memory := trajectory.New(b.obsDims, b.actDims)
	returns := tracker.NewReturn("")
	lengths := tracker.NewEpisodeLength("")
	trackers := []tracker.Tracker{returns, lengths}

	var bar *progressbar.ManualProgressBar
	if b.progress != nil {
		bar = progressbar.NewManualProgressBar(b.progress, 50, b.batchSize)
		defer bar.Close()
	}

	var summary Summary
	for summary.Steps < b.batchSize {
		step, err := b.env.Reset()
		if err != nil {
			return trajectory.Batch{}, summary, fmt.Errorf("collect: could "+
				"not reset environment: %v", err)
		}
		if err := track(trackers, step); err != nil {
			return trajectory.Batch{}, summary, fmt.Errorf("collect: %v", err)
		}

		for t := 0; !step.Last(); t++ {
			action, err := b.agent.SelectAction(step)
			if err != nil {
				return trajectory.Batch{}, summary, fmt.Errorf("collect: "+
					"could not select action: %v", err)
			}
			act := vector(action)

			next, _, err := b.env.Step(action)
			if err != nil {
				return trajectory.Batch{}, summary, fmt.Errorf("collect: "+
					"could not step environment: %v", err)
			}
			if !next.Last() && t+1 >= b.maxEpisodeSteps {
				next.StepType = ts.Last
				next.Truncated = true
			}

			state, _, err := b.perturber.Perturb(vector(step.Observation))
			if err != nil {
				return trajectory.Batch{}, summary, fmt.Errorf("collect: %v",
					err)
			}

			err = memory.Push(trajectory.Step{
				State:     state,
				Action:    act,
				Mask:      next.Mask(),
				NextState: vector(next.Observation),
				Reward:    next.Reward,
			})
			if err != nil {
				return trajectory.Batch{}, summary, fmt.Errorf("collect: %v",
					err)
			}
			if err := track(trackers, next); err != nil {
				return trajectory.Batch{}, summary, fmt.Errorf("collect: %v",
					err)
			}

			summary.Steps++
			step = next
		}
		if step.Truncated {
			summary.Truncated++
		}

		if bar != nil {
			bar.Add(step.Number)
			bar.Display()
		}
	}

	summary.Episodes = returns.Episodes()
	summary.LastReward = returns.Last()
	summary.AverageReward = returns.Mean()
	summary.AverageLength = lengths.Mean()

	return memory.Sample(), summary, nil
}

// snapshot returns the Checkpoint of the current training state
func (b *Batch) snapshot() checkpointer.Checkpoint {
	c := checkpointer.Checkpoint{Rewards: b.state.RewardHistory()}
	if p, ok := b.agent.(agent.Parameterized); ok {
		c.Policy = p.PolicyParams()
		c.Value = p.ValueParams()
	}
	return c
}

// Close closes the agent, environment, and checkpoint store
func (b *Batch) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	record(agent.Close(b.agent))
	record(env.Close(b.env))
	if b.checkpointer != nil {
		record(b.checkpointer.Close())
	}
	if first != nil {
		return fmt.Errorf("close: %v", first)
	}
	return nil
}

// track sends a TimeStep to each Tracker
func track(trackers []tracker.Tracker, step ts.TimeStep) error {
	for _, t := range trackers {
		if err := t.Track(step); err != nil {
			return err
		}
	}
	return nil
}

// vector returns a copy of the data of v
func vector(v *mat.VecDense) []float64 {
	return mat.Col(nil, 0, v)
}

var _ Experiment = &Batch{}
