package viz_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/goviz/viz"
)

func TestOutputsJSONKeepsOrder(t *testing.T) {
	var out viz.Outputs
	if err := json.Unmarshal([]byte(`{"svg":"svg output","dot":"graph {}","cmapx":""}`), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff([]string{"svg", "dot", "cmapx"}, out.Formats()); diff != "" {
		t.Errorf("Formats() mismatch (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(&out)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"svg":"svg output","dot":"graph {}","cmapx":""}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestResultJSON(t *testing.T) {
	res := viz.Result{Status: viz.StatusFailure, Errors: nil}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `{"status":"failure","errors":null}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestNilOutputs(t *testing.T) {
	var out *viz.Outputs
	if out.Len() != 0 {
		t.Errorf("Len() = %d, want 0", out.Len())
	}
	if _, ok := out.Get("svg"); ok {
		t.Error("Get() on nil Outputs reported a value")
	}
	if m := out.Map(); len(m) != 0 {
		t.Errorf("Map() = %v, want empty", m)
	}
}

func TestOutputsUnmarshalRejectsNonObject(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "array", data: `[1]`},
		{name: "string", data: `"svg"`},
		{name: "number value", data: `{"svg": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out viz.Outputs
			if err := json.Unmarshal([]byte(tt.data), &out); err == nil {
				t.Errorf("Unmarshal(%s) error = nil, want error", tt.data)
			}
		})
	}

	var res viz.Result
	if err := json.Unmarshal([]byte(`{"status":"success","output":[1]}`), &res); err == nil {
		t.Error("Unmarshal(result with array output) error = nil, want error")
	}
}
