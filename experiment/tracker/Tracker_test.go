package tracker

import (
	"os"
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/arpl/timestep"
)

func episode(rewards ...float64) []ts.TimeStep {
	steps := []ts.TimeStep{ts.New(ts.First, 0, 1, nil, 0)}
	for i, r := range rewards {
		t := ts.Mid
		if i == len(rewards)-1 {
			t = ts.Last
		}
		steps = append(steps, ts.New(t, r, 1, nil, i+1))
	}
	return steps
}

func TestReturn(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	r := NewReturn(filename)
	l := NewEpisodeLength(filepath.Join(t.TempDir(), "lengths.bin"))

	var steps []ts.TimeStep
	steps = append(steps, episode(1, 2, 3)...)
	steps = append(steps, episode(-1, -1)...)
	for _, step := range steps {
		if err := r.Track(step); err != nil {
			t.Fatalf("track: %v", err)
		}
		if err := l.Track(step); err != nil {
			t.Fatalf("track: %v", err)
		}
	}

	if r.Episodes() != 2 {
		t.Fatalf("episodes:\n\twant(2)\n\thave(%v)", r.Episodes())
	}
	if r.Last() != -2 {
		t.Errorf("last:\n\twant(-2)\n\thave(%v)", r.Last())
	}
	if r.Mean() != 2 {
		t.Errorf("mean:\n\twant(2)\n\thave(%v)", r.Mean())
	}
	if l.Mean() != 2.5 {
		t.Errorf("episode length:\n\twant(2.5)\n\thave(%v)", l.Mean())
	}

	if err := r.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := LoadData(filename)
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}
	want := []float64{6, -2}
	if len(data) != len(want) || data[0] != want[0] || data[1] != want[1] {
		t.Errorf("loadData:\n\twant(%v)\n\thave(%v)", want, data)
	}
}

func TestReturnNonSequential(t *testing.T) {
	r := NewReturn("")
	if err := r.Track(ts.New(ts.Mid, 1, 1, nil, 3)); err == nil {
		t.Errorf("track: expected error for non-sequential timestep")
	}
	if r.Mean() != 0 || r.Last() != 0 {
		t.Errorf("return: expected zero statistics with no episodes")
	}
}

func TestLoadDataMissing(t *testing.T) {
	if _, err := LoadData(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("loadData: expected error for missing file")
	}
}

func TestSaveReplaces(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "data.bin")

	if err := Save(filename, []float64{1, 2, 3}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Save(filename, []float64{4}); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := LoadData(filename)
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}
	if len(data) != 1 || data[0] != 4 {
		t.Errorf("loadData:\n\twant([4])\n\thave(%v)", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("save: temporary files left behind: have %v files",
			len(entries))
	}

	if err := Save(filepath.Join(dir, "missing", "data.bin"),
		[]float64{1}); err == nil {
		t.Errorf("save: expected error for missing directory")
	}
}
