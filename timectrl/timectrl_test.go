package timectrl

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGridTicks(t *testing.T) {
	g, err := NewGrid(0, 2, 0.5, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if g.Steps() != 4 {
		t.Fatalf("Steps() = %d, want 4", g.Steps())
	}
	if g.SavePoints() != 3 {
		t.Fatalf("SavePoints() = %d, want 3", g.SavePoints())
	}

	var saved []float64
	var last Tick
	err = g.Run(context.Background(), func(tick Tick) error {
		if tick.Save {
			saved = append(saved, tick.Time)
		}
		last = tick
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 1, 2}, saved); diff != "" {
		t.Fatalf("saved times mismatch (-want +got):\n%s", diff)
	}
	if !last.Last || last.Time != 2 {
		t.Fatalf("last tick = %+v, want Last at time 2", last)
	}
}

func TestGridToleratesFloatNoise(t *testing.T) {
	g, err := NewGrid(0, 1, 0.1, 0.1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if g.Steps() != 10 {
		t.Fatalf("Steps() = %d, want 10", g.Steps())
	}
}

func TestGridSavePeriodDefaultsToStep(t *testing.T) {
	g, err := NewGrid(2000, 2010, 1, 0)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if g.SaveEvery != 1 || g.SavePoints() != 11 {
		t.Fatalf("SaveEvery=%d SavePoints=%d, want 1 and 11", g.SaveEvery, g.SavePoints())
	}
}

func TestNewGridRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name                    string
		start, stop, step, save float64
	}{
		{"zero step", 0, 10, 0, 1},
		{"negative step", 0, 10, -1, 1},
		{"stop before start", 10, 0, 1, 1},
	}
	for _, tc := range cases {
		if _, err := NewGrid(tc.start, tc.stop, tc.step, tc.save); !errors.Is(err, ErrInvalidGrid) {
			t.Fatalf("%s: error = %v, want ErrInvalidGrid", tc.name, err)
		}
	}
}

func TestGridRunStopsOnCancel(t *testing.T) {
	g, err := NewGrid(0, 100, 1, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = g.Run(ctx, func(Tick) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
