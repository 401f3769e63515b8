package dependency

import (
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []Spec
	}{
		{
			name: "single record",
			json: `[{"dependency":"build","timeout":1}]`,
			want: []Spec{{Name: "build", Timeout: time.Minute}},
		},
		{
			name: "default timeout",
			json: `[{"dependency":"build"}]`,
			want: []Spec{{Name: "build", Timeout: 60 * time.Minute}},
		},
		{
			name: "explicit zero timeout is kept",
			json: `[{"dependency":"build","timeout":0}]`,
			want: []Spec{{Name: "build", Timeout: 0}},
		},
		{
			name: "name alias",
			json: `[{"name":"lint","timeout":5}]`,
			want: []Spec{{Name: "lint", Timeout: 5 * time.Minute}},
		},
		{
			name: "bare strings",
			json: `["build", "test"]`,
			want: []Spec{{Name: "build", Timeout: DefaultTimeout}, {Name: "test", Timeout: DefaultTimeout}},
		},
		{
			name: "order preserved",
			json: `[{"dependency":"c","timeout":3},{"dependency":"a","timeout":1},{"dependency":"b","timeout":2}]`,
			want: []Spec{
				{Name: "c", Timeout: 3 * time.Minute},
				{Name: "a", Timeout: time.Minute},
				{Name: "b", Timeout: 2 * time.Minute},
			},
		},
		{
			name: "empty array",
			json: `[]`,
			want: []Spec{},
		},
		{
			name: "empty input",
			json: "  ",
			want: []Spec{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.json))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() returned %d specs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("spec[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"not json", `not json`, "failed to unmarshal dependencies array"},
		{"object instead of array", `{"dependency":"build"}`, "failed to unmarshal dependencies array"},
		{"fractional timeout", `[{"dependency":"build","timeout":1.5}]`, "dependency[0]"},
		{"string timeout", `[{"dependency":"a"},{"dependency":"b","timeout":"10"}]`, "dependency[1]"},
		{"number element", `[42]`, "dependency[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal([]Spec{{Name: "build", Timeout: 90 * time.Minute}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `[{"dependency":"build","timeout":90}]` {
		t.Errorf("Marshal() = %s", data)
	}

	specs, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if specs[0].Timeout != 90*time.Minute {
		t.Errorf("round-trip timeout = %v", specs[0].Timeout)
	}

	empty, err := Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal(nil) error = %v", err)
	}
	if string(empty) != "[]" {
		t.Errorf("Marshal(nil) = %s, want []", empty)
	}
}
