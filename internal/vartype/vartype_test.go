// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"encoding/json"
	"math"
	"testing"
)

func TestVariable(t *testing.T) {
	t.Run("zero value is unknown", func(t *testing.T) {
		var v VarFloat64
		if v.IsSet() {
			t.Error("expected zero value variable to be unset")
		}
		if v.String() != Unknown {
			t.Errorf("expected string to be %q, got %q", Unknown, v.String())
		}
	})
	t.Run("a set zero is a known value", func(t *testing.T) {
		v := NewVariable(0.0)
		if !v.IsSet() {
			t.Error("expected variable to be set")
		}
		if v.String() != "0" {
			t.Errorf("expected string to be %q, got %q", "0", v.String())
		}
	})
	t.Run("reset clears the value", func(t *testing.T) {
		v := NewVariable(12)
		v.Reset()
		if v.IsSet() || v.Value() != 0 {
			t.Error("expected variable to be reset")
		}
	})
	t.Run("or returns the fallback for unset values", func(t *testing.T) {
		var v VarInt
		if v.Or(7) != 7 {
			t.Errorf("expected fallback to be returned, got %d", v.Or(7))
		}
		v.Set(3)
		if v.Or(7) != 3 {
			t.Errorf("expected value to be returned, got %d", v.Or(7))
		}
	})
}

func TestFiniteFloat64(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		isset bool
	}{
		{"finite", 1.5, true},
		{"zero", 0, true},
		{"nan", math.NaN(), false},
		{"positive infinity", math.Inf(1), false},
		{"negative infinity", math.Inf(-1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FiniteFloat64(tc.value).IsSet(); got != tc.isset {
				t.Errorf("expected isset to be %t, got %t", tc.isset, got)
			}
		})
	}
}

func TestVariable_JSON(t *testing.T) {
	type payload struct {
		Speed VarFloat64 `json:"speed"`
		Alt   VarFloat64 `json:"alt"`
	}
	in := payload{Speed: NewVariable(2.5)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("failed to marshal payload: %s", err)
	}
	if string(data) != `{"speed":2.5,"alt":null}` {
		t.Errorf("unexpected JSON: %s", data)
	}
	var out payload
	if err = json.Unmarshal(data, &out); err != nil {
		t.Fatalf("failed to unmarshal payload: %s", err)
	}
	if !out.Speed.IsSet() || out.Speed.Value() != 2.5 {
		t.Errorf("expected speed to be 2.5, got %s", out.Speed)
	}
	if out.Alt.IsSet() {
		t.Error("expected altitude to be unset")
	}
}
