package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestManualProgressBar(t *testing.T) {
	var out bytes.Buffer
	bar := NewManualProgressBar(&out, 10, 4)

	bar.Increment()
	if have := bar.Progress(); have != 0.25 {
		t.Errorf("progress:\n\twant(0.25)\n\thave(%v)", have)
	}

	bar.Add(10)
	if have := bar.Progress(); have != 1 {
		t.Errorf("progress:\n\twant(1)\n\thave(%v)", have)
	}

	bar.Display()
	if !strings.Contains(out.String(), "100.00%") {
		t.Errorf("display: expected full progress, have %q", out.String())
	}
	if n := strings.Count(out.String(), "█"); n != 10 {
		t.Errorf("display: bar width\n\twant(10)\n\thave(%v)", n)
	}
}
