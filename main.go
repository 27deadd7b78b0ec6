// Command arpl trains a TRPO agent with adversarially perturbed
// training states.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samuelfneumann/arpl/agent"
	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/trpo"
	"github.com/samuelfneumann/arpl/environment/envconfig"
	"github.com/samuelfneumann/arpl/experiment"
	"github.com/samuelfneumann/arpl/experiment/checkpointer"
	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("arpl: ")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// trainFlags holds the command line flags of the train command
type trainFlags struct {
	config   string
	quiet    bool
	progress bool

	gamma       float64
	tau         float64
	l2Reg       float64
	maxKL       float64
	damping     float64
	phi         float64
	eps         float64
	curriculum  int
	seed        uint64
	batchSize   int
	logInterval int
	envName     string

	maxIterations  int
	skipDegenerate bool
	store          string
	checkpointDir  string
	dbPath         string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arpl",
		Short: "Train TRPO agents with adversarial state perturbations",
		Long: `arpl trains a Gaussian MLP policy with trust region policy
optimization. States stored for training are perturbed along the
gradient of the policy's mean action with a probability that grows over
training, following adversarially robust policy learning (ARPL).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newTrainCmd(), newCheckpointCmd())
	return root
}

func newTrainCmd() *cobra.Command {
	var f trainFlags
	defaults := experiment.DefaultConfig()
	agentDefaults := trpo.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run training until interrupted",
		Long: `Run training until interrupted or until --max-iterations
iterations have finished. Settings are read from the JSON file given by
--config, if any, and then overridden by any flags that are set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.experimentConfig(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return train(cmd.Context(), c, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.config, "config", "", "JSON experiment configuration file")
	flags.BoolVar(&f.quiet, "quiet", false, "do not log training progress")
	flags.BoolVar(&f.progress, "progress", false, "display batch collection progress")

	flags.Float64Var(&f.gamma, "gamma", agentDefaults.Gamma, "discount factor")
	flags.Float64Var(&f.tau, "tau", agentDefaults.Tau, "GAE λ")
	flags.Float64Var(&f.l2Reg, "l2-reg", agentDefaults.L2Reg, "L2 regularization of the value function")
	flags.Float64Var(&f.maxKL, "max-kl", agentDefaults.TrustRegion.MaxKL, "maximum KL divergence of a policy update")
	flags.Float64Var(&f.damping, "damping", agentDefaults.TrustRegion.Damping, "Fisher-vector product damping")
	flags.Float64Var(&f.phi, "phi", defaults.ARPL.Phi, "initial ARPL perturbation probability")
	flags.Float64Var(&f.eps, "eps", defaults.ARPL.Epsilon, "ARPL perturbation strength")
	flags.IntVar(&f.curriculum, "curriculum", defaults.ARPL.CurriculumInterval, "iterations between perturbation probability increases")
	flags.Uint64Var(&f.seed, "seed", defaults.Seed, "random seed")
	flags.IntVar(&f.batchSize, "batch-size", defaults.BatchSize, "minimum number of steps per batch")
	flags.IntVar(&f.logInterval, "log-interval", defaults.LogInterval, "iterations between training logs")
	flags.StringVar(&f.envName, "env-name", defaults.EnvName(), "environment name, any name other than Pendulum is a Gym environment")

	flags.IntVar(&f.maxIterations, "max-iterations", 0, "number of iterations to run, 0 for no limit")
	flags.BoolVar(&f.skipDegenerate, "skip-degenerate", false, "skip updates on degenerate batches instead of stopping")
	flags.StringVar(&f.store, "store", string(defaults.Checkpoint.Store), "checkpoint store: file, sqlite, or none")
	flags.StringVar(&f.checkpointDir, "checkpoint-dir", defaults.Checkpoint.Dir, "directory of file checkpoints")
	flags.StringVar(&f.dbPath, "db", "checkpoints.db", "database of sqlite checkpoints")

	return cmd
}

// experimentConfig returns the experiment configuration given by the
// configuration file and the flags for which set returns true
func (f trainFlags) experimentConfig(set func(string) bool) (
	experiment.Config, error) {
	c := experiment.DefaultConfig()
	if f.config != "" {
		data, err := os.ReadFile(f.config)
		if err != nil {
			return experiment.Config{}, fmt.Errorf("could not read "+
				"config: %v", err)
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return experiment.Config{}, fmt.Errorf("could not parse "+
				"config %v: %v", f.config, err)
		}
	}

	if set("gamma") || set("tau") || set("l2-reg") || set("max-kl") ||
		set("damping") {
		tc, ok := c.Agent.Config.(trpo.Config)
		if !ok {
			return experiment.Config{}, fmt.Errorf("agent flags require a "+
				"%v agent, have %v", agent.TRPOGaussianMLP, c.Agent.Type)
		}
		if set("gamma") {
			tc.Gamma = f.gamma
		}
		if set("tau") {
			tc.Tau = f.tau
		}
		if set("l2-reg") {
			tc.L2Reg = f.l2Reg
		}
		if set("max-kl") {
			tc.TrustRegion.MaxKL = f.maxKL
		}
		if set("damping") {
			tc.TrustRegion.Damping = f.damping
		}
		c.Agent = agent.NewTypedConfig(tc)
	}

	if set("phi") {
		c.ARPL.Phi = f.phi
	}
	if set("eps") {
		c.ARPL.Epsilon = f.eps
	}
	if set("curriculum") {
		c.ARPL.CurriculumInterval = f.curriculum
	}
	if set("seed") {
		c.Seed = f.seed
	}
	if set("batch-size") {
		c.BatchSize = f.batchSize
	}
	if set("log-interval") {
		c.LogInterval = f.logInterval
	}
	if set("env-name") {
		if strings.EqualFold(f.envName, string(envconfig.Pendulum)) {
			c.Env.Environment = envconfig.Pendulum
			c.Env.Name = ""
		} else {
			c.Env.Environment = envconfig.Gym
			c.Env.Name = f.envName
		}
	}
	if set("max-iterations") {
		c.MaxIterations = f.maxIterations
	}
	if set("skip-degenerate") {
		c.SkipDegenerate = f.skipDegenerate
	}
	if set("store") {
		c.Checkpoint.Store = checkpointer.StoreType(f.store)
	}
	if set("checkpoint-dir") {
		c.Checkpoint.Dir = f.checkpointDir
	}
	if set("db") || (c.Checkpoint.Store == checkpointer.SQLite &&
		c.Checkpoint.Path == "") {
		c.Checkpoint.Path = f.dbPath
	}

	if err := c.Validate(); err != nil {
		return experiment.Config{}, fmt.Errorf("invalid configuration: %v",
			err)
	}
	return c, nil
}

// train runs the experiment described by c until it finishes or the
// process is interrupted
func train(ctx context.Context, c experiment.Config, f trainFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out io.Writer = os.Stderr
	if f.quiet {
		out = io.Discard
	}
	logger := log.New(out, "experiment: ", log.LstdFlags)

	exp, err := c.CreateExp(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := exp.Close(); err != nil {
			log.Println(err)
		}
	}()

	if f.progress && !f.quiet {
		exp.ShowProgress(os.Stderr)
	}

	logger.Printf("Training on %v with ε = %v, Φ = %v", c.EnvName(),
		c.ARPL.Epsilon, c.ARPL.Phi)
	err = exp.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Printf("Interrupted after iteration %v",
			exp.State().Iteration)
		return nil
	}
	return err
}
