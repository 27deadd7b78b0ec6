package checkpointer

import "fmt"

// StoreType is the type of Store Checkpoints are saved to
type StoreType string

const (
	File   StoreType = "file"
	SQLite StoreType = "sqlite"
	None   StoreType = "none" // Checkpoints are not saved
)

// Config describes the Store to save Checkpoints to
type Config struct {
	Store StoreType

	// Dir is the directory a FileStore saves to and Naming determines
	// how its files are named
	Dir    string
	Naming Naming

	// Path is the database file of a SQLiteStore and Run is the
	// identifier Checkpoints are saved under. A random identifier is
	// used if Run is empty.
	Path string
	Run  string
}

// DefaultConfig returns a Config which saves Checkpoints to the
// working directory, overwriting the previous Checkpoint on each save
func DefaultConfig() Config {
	return Config{
		Store:  File,
		Dir:    ".",
		Naming: Overwrite,
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	switch c.Store {
	case File:
		return c.Naming.Validate()
	case SQLite:
		if c.Path == "" {
			return fmt.Errorf("sqlite store requires a database path")
		}
		return nil
	case None:
		return nil
	}
	return fmt.Errorf("unknown checkpoint store %q", string(c.Store))
}

// CreateStore returns the Store described by the Config. The tag
// identifies the run, see Tag. If the Config describes no Store, then
// CreateStore returns a nil Store and nil error.
func (c Config) CreateStore(tag string) (Store, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createStore: %v", err)
	}

	switch c.Store {
	case File:
		store, err := NewFileStore(c.Dir, tag, c.Naming)
		if err != nil {
			return nil, fmt.Errorf("createStore: %v", err)
		}
		return store, nil

	case SQLite:
		store, err := NewSQLiteStore(c.Path, c.Run, tag)
		if err != nil {
			return nil, fmt.Errorf("createStore: %v", err)
		}
		return store, nil
	}
	return nil, nil
}
