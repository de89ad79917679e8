package util

import "testing"

func TestSecondsToTimeString(t *testing.T) {
	inputs := []float64{
		-3,
		57.2,
		59.6,
		3360,
		4812,
	}
	outputs := []string{
		"0:00",
		"0:57",
		"1:00",
		"56:00",
		"80:12",
	}
	for i, input := range inputs {
		if s := SecondsToTimeString(input); s != outputs[i] {
			t.Errorf("got %s, want %s", s, outputs[i])
		}
	}
}

func TestSecondsToLongTimeString(t *testing.T) {
	inputs := []float64{
		0,
		57.2,
		4800,
		4812,
		86401,
		2 * 86400,
	}
	outputs := []string{
		"0 sec",
		"57 sec",
		"1 hr 20 min",
		"1 hr 20 min 12 sec",
		"1 day 1 sec",
		"2 days",
	}
	for i, input := range inputs {
		if s := SecondsToLongTimeString(input); s != outputs[i] {
			t.Errorf("got %s, want %s", s, outputs[i])
		}
	}
}
