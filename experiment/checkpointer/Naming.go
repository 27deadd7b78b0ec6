package checkpointer

import (
	"fmt"
	"time"
)

// Naming determines how the files of consecutive Checkpoints saved by
// a FileStore are named
type Naming string

const (
	// Overwrite saves each Checkpoint under the same filenames,
	// replacing the previous Checkpoint
	Overwrite Naming = "overwrite"

	// Enumerate suffixes the filenames of each Checkpoint with a
	// counter, e.g. file1.bin, file2.bin, ..., fileK.bin
	Enumerate Naming = "enumerate"

	// Timestamp suffixes the filenames of each Checkpoint with the
	// number of nanoseconds since January 1, 1970
	Timestamp Naming = "time"
)

// Validate returns an error if n is not a known Naming
func (n Naming) Validate() error {
	switch n {
	case Overwrite, Enumerate, Timestamp:
		return nil
	}
	return fmt.Errorf("unknown naming %q", string(n))
}

// suffixer returns a function which returns the filename suffix of the
// next Checkpoint
func (n Naming) suffixer() func() string {
	switch n {
	case Enumerate:
		return FilenameEnumerator(0)
	case Timestamp:
		return FileTimer()
	default:
		return func() string { return "" }
	}
}

// FilenameEnumerator returns a function which returns consecutive
// integer filename suffixes. The first call returns start+1.
func FilenameEnumerator(start int) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprint(i)
	}
}

// FileTimer returns a function which returns a filename suffix holding
// the number of nanoseconds since January 1, 1970
func FileTimer() func() string {
	return func() string {
		return fmt.Sprintf("-%v", time.Now().UnixNano())
	}
}
