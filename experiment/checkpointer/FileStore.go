package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/arpl/experiment/tracker"
)

const extension = ".bin"

// paramFile is the on-disk layout of a single set of parameters
type paramFile struct {
	Iteration int
	Reason    Reason
	Params    []float64
}

// FileStore is a Store that saves each Checkpoint as three gob
// encoded files in a directory:
//
//	Weights_policy_<tag><suffix>.bin	policy parameters
//	Weights_value_<tag><suffix>.bin	value function parameters
//	Plot_array<tag><suffix>.bin	reward history
//
// The reward history is saved in the format read by tracker.LoadData.
// The tag identifies the run, see Tag. The suffix depends on the
// FileStore's Naming.
type FileStore struct {
	dir    string
	tag    string
	naming Naming
	suffix func() string

	saved      bool
	lastSuffix string
}

// Tag returns the run tag used in filenames for a run with
// perturbation step size epsilon on the environment named env
func Tag(epsilon float64, env string) string {
	return fmt.Sprintf("%v%v", epsilon, env)
}

// NewFileStore returns a new FileStore saving to dir, which is created
// if it does not exist
func NewFileStore(dir, tag string, naming Naming) (*FileStore, error) {
	if err := naming.Validate(); err != nil {
		return nil, fmt.Errorf("newFileStore: %v", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("newFileStore: could not create "+
			"directory: %v", err)
	}

	return &FileStore{
		dir:    dir,
		tag:    tag,
		naming: naming,
		suffix: naming.suffixer(),
	}, nil
}

// Paths returns the policy, value, and reward history filenames of the
// most recently saved Checkpoint. With Overwrite naming, the paths are
// known before any Checkpoint has been saved.
func (f *FileStore) Paths() (policy, value, rewards string, ok bool) {
	if !f.saved && f.naming != Overwrite {
		return "", "", "", false
	}
	policy, value, rewards = f.paths(f.lastSuffix)
	return policy, value, rewards, true
}

func (f *FileStore) paths(suffix string) (policy, value, rewards string) {
	name := f.tag + suffix + extension
	policy = filepath.Join(f.dir, "Weights_policy_"+name)
	value = filepath.Join(f.dir, "Weights_value_"+name)
	rewards = filepath.Join(f.dir, "Plot_array"+name)
	return policy, value, rewards
}

// Save saves a Checkpoint to disk
func (f *FileStore) Save(c Checkpoint) error {
	suffix := f.suffix()
	policy, value, rewards := f.paths(suffix)

	if err := writeParams(policy, paramFile{c.Iteration, c.Reason,
		c.Policy}); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := writeParams(value, paramFile{c.Iteration, c.Reason,
		c.Value}); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := tracker.Save(rewards, c.Rewards); err != nil {
		return fmt.Errorf("save: %v", err)
	}

	f.saved = true
	f.lastSuffix = suffix
	return nil
}

// Load loads the most recently saved Checkpoint
func (f *FileStore) Load() (Checkpoint, error) {
	policyPath, valuePath, rewardsPath, ok := f.Paths()
	if !ok {
		return Checkpoint{}, fmt.Errorf("load: no checkpoint has been saved")
	}

	policy, err := readParams(policyPath)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load: %v", err)
	}
	value, err := readParams(valuePath)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load: %v", err)
	}
	rewards, err := tracker.LoadData(rewardsPath)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load: %v", err)
	}

	return Checkpoint{
		Iteration: policy.Iteration,
		Reason:    policy.Reason,
		Policy:    policy.Params,
		Value:     value.Params,
		Rewards:   rewards,
	}, nil
}

// Close satisfies the Store interface. FileStores hold no resources
// between saves.
func (f *FileStore) Close() error {
	return nil
}

// writeParams encodes p to a temporary file which then replaces
// filename, so that filename never holds a partially written
// Checkpoint
func writeParams(filename string, p paramFile) error {
	tmp := filename + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not open save file: %v", err)
	}

	if err := gob.NewEncoder(file).Encode(p); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not encode parameters: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not write save file: %v", err)
	}
	return os.Rename(tmp, filename)
}

func readParams(filename string) (paramFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return paramFile{}, fmt.Errorf("could not open parameter file: %v",
			err)
	}
	defer file.Close()

	var p paramFile
	if err := gob.NewDecoder(file).Decode(&p); err != nil {
		return paramFile{}, fmt.Errorf("could not decode parameters: %v",
			err)
	}
	return p, nil
}
