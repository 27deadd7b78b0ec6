package main

import (
	"fmt"
	"io"

	"github.com/samuelfneumann/arpl/experiment/checkpointer"
	"github.com/spf13/cobra"
)

// rewardsShown is the number of most recent average rewards printed
const rewardsShown = 10

func newCheckpointCmd() *cobra.Command {
	var (
		store   string
		dir     string
		db      string
		run     string
		eps     float64
		envName string
	)

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Show the most recent checkpoint of a run",
		Long: `Show the most recent checkpoint of a run. Without --run, the
run which most recently saved to the sqlite database is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := checkpointer.Config{
				Store:  checkpointer.StoreType(store),
				Dir:    dir,
				Naming: checkpointer.Overwrite,
				Path:   db,
				Run:    run,
			}
			if c.Store == checkpointer.SQLite && run == "" {
				latest, err := checkpointer.LatestRun(db)
				if err != nil {
					return fmt.Errorf("checkpoint: %v", err)
				}
				c.Run = latest
				fmt.Fprintf(cmd.OutOrStdout(), "Run:\t\t%v\n", latest)
			}

			s, err := c.CreateStore(checkpointer.Tag(eps, envName))
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("checkpoint: no store to read from")
			}
			defer s.Close()

			cp, err := s.Load()
			if err != nil {
				return err
			}
			printCheckpoint(cmd.OutOrStdout(), cp)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&store, "store", string(checkpointer.File), "checkpoint store: file or sqlite")
	flags.StringVar(&dir, "checkpoint-dir", ".", "directory of file checkpoints")
	flags.StringVar(&db, "db", "checkpoints.db", "database of sqlite checkpoints")
	flags.StringVar(&run, "run", "", "run identifier of sqlite checkpoints, the latest run if empty")
	flags.Float64Var(&eps, "eps", 0, "ARPL perturbation strength of the run")
	flags.StringVar(&envName, "env-name", "Pendulum", "environment name of the run")

	return cmd
}

// printCheckpoint writes a summary of a Checkpoint to w
func printCheckpoint(w io.Writer, cp checkpointer.Checkpoint) {
	fmt.Fprintf(w, "Iteration:\t%v\n", cp.Iteration)
	fmt.Fprintf(w, "Reason:\t\t%v\n", cp.Reason)
	fmt.Fprintf(w, "Policy:\t\t%v parameters\n", len(cp.Policy))
	fmt.Fprintf(w, "Value:\t\t%v parameters\n", len(cp.Value))

	rewards := cp.Rewards
	if len(rewards) > rewardsShown {
		rewards = rewards[len(rewards)-rewardsShown:]
	}
	fmt.Fprintf(w, "Rewards:\t%.2f\n", rewards)
}
