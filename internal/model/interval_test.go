package model

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestIntervalUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    Interval
		wantErr bool
	}{
		{"seconds", "interval: 5", Interval(5), false},
		{"quoted seconds", `interval: "10"`, Interval(10), false},
		{"zero", "interval: 0", IntervalUnset, false},
		{"once keyword", "interval: once", IntervalOnce, false},
		{"persist keyword", "interval: persist", IntervalPersist, false},
		{"absent", "name: x", IntervalUnset, false},
		{"negative", "interval: -3", 0, true},
		{"junk", "interval: soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var spec BlockSpec
			err := yaml.Unmarshal([]byte(tt.yaml), &spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.yaml)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal %q: %v", tt.yaml, err)
			}
			if spec.Interval != tt.want {
				t.Errorf("interval = %d, want %d", spec.Interval, tt.want)
			}
		})
	}
}

func TestIntervalPredicates(t *testing.T) {
	tests := []struct {
		iv      Interval
		repeats bool
		persist bool
		str     string
	}{
		{Interval(5), true, false, "5s"},
		{IntervalUnset, false, false, "once"},
		{IntervalOnce, false, false, "once"},
		{IntervalPersist, false, true, "persist"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.iv.Repeats(); got != tt.repeats {
				t.Errorf("Repeats() = %v, want %v", got, tt.repeats)
			}
			if got := tt.iv.Persistent(); got != tt.persist {
				t.Errorf("Persistent() = %v, want %v", got, tt.persist)
			}
			if got := tt.iv.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}
