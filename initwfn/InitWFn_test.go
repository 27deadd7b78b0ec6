package initwfn

import (
	"encoding/json"
	"testing"
)

func TestInitWFnJSON(t *testing.T) {
	inits := []*InitWFn{NewDefault()}
	if n, err := NewGlorotN(0.5); err == nil {
		inits = append(inits, n)
	}
	if u, err := NewUniform(-0.1, 0.1); err == nil {
		inits = append(inits, u)
	}
	if z, err := NewZeroes(); err == nil {
		inits = append(inits, z)
	}
	if len(inits) != 4 {
		t.Fatalf("could not construct initializers")
	}

	for _, init := range inits {
		data, err := json.Marshal(init)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var decoded InitWFn
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if decoded.Type != init.Type {
			t.Errorf("type:\n\twant(%v)\n\thave(%v)", init.Type, decoded.Type)
		}
		if decoded.Config != init.Config {
			t.Errorf("config:\n\twant(%v)\n\thave(%v)", init.Config,
				decoded.Config)
		}
		if decoded.InitWFn() == nil {
			t.Errorf("unmarshal: Gorgonia InitWFn not created")
		}
	}
}

func TestInitWFnJSONInvalid(t *testing.T) {
	invalid := []string{
		`{"Type": "Orthogonal", "Config": {}}`,
		`{"Config": {"Gain": 1}}`,
		`[]`,
	}
	for _, data := range invalid {
		var i InitWFn
		if err := json.Unmarshal([]byte(data), &i); err == nil {
			t.Errorf("unmarshal %v: expected error", data)
		}
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := NewGlorotU(0); err == nil {
		t.Errorf("newGlorotU: expected error for zero gain")
	}
	if _, err := NewUniform(1, -1); err == nil {
		t.Errorf("newUniform: expected error for empty interval")
	}
}
