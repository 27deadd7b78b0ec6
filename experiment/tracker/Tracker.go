// Package tracker implements Trackers, which track and save data
// generated while training
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/samuelfneumann/arpl/timestep"
)

// Tracker keeps track of experiment data and saves the data to disk
// when requested
type Tracker interface {
	Track(t ts.TimeStep) error
	Save() error
}

// Save saves data to filename so that it can later be read by LoadData.
// Data is written to a temporary file which then replaces filename, so
// that filename never holds partially written data.
func Save(filename string, data []float64) error {
	tmp := filename + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}

	en := gob.NewEncoder(file)
	if err = en.Encode(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save: could not write save file: %v", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %v", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data []float64

	if err = dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %v", err)
	}
	return data, nil
}
