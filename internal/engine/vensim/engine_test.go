package vensim

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/signalsfoundry/scenario-resimulator/internal/engine"
	"github.com/signalsfoundry/scenario-resimulator/model"
)

const controls = `
INITIAL TIME = 0 ~ ~ |
FINAL TIME = 4 ~ ~ |
TIME STEP = 1 ~ ~ |
`

var approx = cmpopts.EquateApprox(0, 1e-9)

func loadGrowth(t *testing.T) []byte {
	t.Helper()
	src, err := os.ReadFile("testdata/growth.mdl")
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	return src
}

func column(t *testing.T, tbl *model.ResultTable, name string) []float64 {
	t.Helper()
	vals, ok := tbl.Values[name]
	if !ok {
		t.Fatalf("column %q missing; have %v", name, tbl.Columns)
	}
	return vals
}

func TestEngineRun_GrowthModel(t *testing.T) {
	tbl, err := New().Run(context.Background(), loadGrowth(t), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tbl.TimeColumn != TimeColumn {
		t.Fatalf("TimeColumn = %q, want %q", tbl.TimeColumn, TimeColumn)
	}
	wantCols := []string{
		"Population", "Births", "Birth Rate", "Deaths", `"death rate"`,
		"FINAL TIME", "INITIAL TIME", "SAVEPER", "TIME STEP",
	}
	if diff := cmp.Diff(wantCols, tbl.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 1, 2, 3, 4}, tbl.Time); diff != "" {
		t.Fatalf("time mismatch (-want +got):\n%s", diff)
	}

	wantPop := []float64{100, 105, 110.25, 115.7625, 121.550625}
	if diff := cmp.Diff(wantPop, column(t, tbl, "Population"), approx); diff != "" {
		t.Fatalf("Population mismatch (-want +got):\n%s", diff)
	}
	wantBirths := []float64{10, 10.5, 11.025, 11.57625, 12.1550625}
	if diff := cmp.Diff(wantBirths, column(t, tbl, "Births"), approx); diff != "" {
		t.Fatalf("Births mismatch (-want +got):\n%s", diff)
	}
	if got := column(t, tbl, "SAVEPER"); got[0] != 1 {
		t.Fatalf("SAVEPER = %v, want 1", got[0])
	}
}

func TestEngineRun_OverrideFromTime(t *testing.T) {
	override := model.Series{
		{Time: 0, Value: 0.1},
		{Time: 1, Value: 0.1},
		{Time: 2, Value: 0.05},
		{Time: 3, Value: 0.05},
		{Time: 4, Value: 0.05},
	}
	// Any spelling of the name addresses the variable.
	tbl, err := New().Run(context.Background(), loadGrowth(t), engine.Overrides{"birth_rate": override})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(override.Values(), column(t, tbl, "Birth Rate"), approx); diff != "" {
		t.Fatalf("Birth Rate mismatch (-want +got):\n%s", diff)
	}
	wantPop := []float64{100, 105, 110.25, 110.25, 110.25}
	if diff := cmp.Diff(wantPop, column(t, tbl, "Population"), approx); diff != "" {
		t.Fatalf("Population mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_OverrideStock(t *testing.T) {
	override := model.Series{{Time: 0, Value: 1}, {Time: 4, Value: 5}}
	tbl, err := New().Run(context.Background(), loadGrowth(t), engine.Overrides{"Population": override})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5}, column(t, tbl, "Population"), approx); diff != "" {
		t.Fatalf("Population mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.1, 0.2, 0.3, 0.4, 0.5}, column(t, tbl, "Births"), approx); diff != "" {
		t.Fatalf("Births mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_OverrideErrors(t *testing.T) {
	src := loadGrowth(t)
	series := model.Series{{Time: 0, Value: 1}}

	_, err := New().Run(context.Background(), src, engine.Overrides{"no such thing": series})
	if !errors.Is(err, engine.ErrUnknownVariable) {
		t.Fatalf("unknown override error = %v, want ErrUnknownVariable", err)
	}

	_, err = New().Run(context.Background(), src, engine.Overrides{"TIME STEP": series})
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("control override error = %v, want *ModelError", err)
	}

	_, err = New().Run(context.Background(), src, engine.Overrides{"Births": {}})
	if !errors.As(err, &me) {
		t.Fatalf("empty override error = %v, want *ModelError", err)
	}
}

func TestEngineRun_BuiltinsAndLookups(t *testing.T) {
	src := []byte(controls + `
effect( [(0,0)-(4,8)],(0,0),(2,4),(4,4) ) ~ ~ |
stepped = STEP(10, 2) ~ ~ |
pulsed = PULSE(1, 2) ~ ~ |
ramped = RAMP(2, 1, 3) ~ ~ |
looked = effect(Time) ~ ~ |
inline = WITH LOOKUP(Time, ((0,1),(4,5))) ~ ~ |
guarded = IF THEN ELSE(Time > 2 :AND: Time < 4, ZIDZ(1, 0), XIDZ(1, 0, -1)) ~ ~ |
`)
	tbl, err := New().Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tbl.HasColumn("effect") {
		t.Fatalf("lookup tables must not be reported as columns")
	}
	cases := map[string][]float64{
		"stepped": {0, 0, 10, 10, 10},
		"pulsed":  {0, 1, 1, 0, 0},
		"ramped":  {0, 0, 2, 4, 4},
		"looked":  {0, 2, 4, 4, 4},
		"inline":  {1, 2, 3, 4, 5},
		"guarded": {-1, -1, -1, 0, -1},
	}
	for name, want := range cases {
		if diff := cmp.Diff(want, column(t, tbl, name), approx); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestEngineRun_SavePeriod(t *testing.T) {
	src := []byte(`
INITIAL TIME = 0 ~ ~ |
FINAL TIME = 1 ~ ~ |
TIME STEP = 0.25 ~ ~ |
SAVEPER = 0.5 ~ ~ |
level = INTEG(1, 0) ~ ~ |
`)
	tbl, err := New().Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 0.5, 1}, tbl.Time, approx); diff != "" {
		t.Fatalf("time mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.5, 1}, column(t, tbl, "level"), approx); diff != "" {
		t.Fatalf("level mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_ContinuedEquation(t *testing.T) {
	src := []byte(controls + "Level = INTEG(Inflow, 0) ~ ~ |\r\nInflow = 1 + 2 +\\\r\n\t\t3\r\n\t~\tunits [0,?]\r\n\t~\t|\r\n")
	tbl, err := New().Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 6, 12, 18, 24}, tbl.Values["Level"]); diff != "" {
		t.Fatalf("Level mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_NonFiniteValuesPropagate(t *testing.T) {
	src := []byte(controls + "ratio = 1 / (Time - 2) ~ ~ |\n")
	tbl, err := New().Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := column(t, tbl, "ratio")[2]; !math.IsInf(got, 1) {
		t.Fatalf("ratio at Time 2 = %v, want +Inf", got)
	}
}

func TestEngineRun_ModelErrors(t *testing.T) {
	cases := []struct {
		name        string
		src         string
		unsupported bool
	}{
		{name: "missing final time", src: "INITIAL TIME = 0 ~ ~ |\nTIME STEP = 1 ~ ~ |\nx = 1 ~ ~ |"},
		{name: "undefined reference", src: controls + "x = y + 1 ~ ~ |"},
		{name: "duplicate", src: controls + "x = 1 ~ ~ |\nX = 2 ~ ~ |"},
		{name: "cycle", src: controls + "a = b ~ ~ |\nb = a + 1 ~ ~ |"},
		{name: "unknown function", src: controls + "x = SMOOTH(1, 2) ~ ~ |", unsupported: true},
		{name: "nested integ", src: controls + "x = 1 + INTEG(1, 0) ~ ~ |", unsupported: true},
		{name: "arity", src: controls + "x = MIN(1) ~ ~ |"},
		{name: "bare lookup", src: controls + "t( (0,0),(1,1) ) ~ ~ |\nx = t ~ ~ |"},
		{name: "reserved time", src: controls + "Time = 3 ~ ~ |"},
		{name: "negative step", src: "INITIAL TIME = 0 ~ ~ |\nFINAL TIME = 4 ~ ~ |\nTIME STEP = -1 ~ ~ |"},
		{name: "time in controls", src: "INITIAL TIME = 0 ~ ~ |\nFINAL TIME = Time ~ ~ |\nTIME STEP = 1 ~ ~ |"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Run(context.Background(), []byte(tc.src), nil)
			if err == nil {
				t.Fatalf("Run succeeded, want error")
			}
			var (
				me *ModelError
				se *SyntaxError
			)
			if !errors.As(err, &me) && !errors.As(err, &se) {
				t.Fatalf("error %T (%v), want *ModelError or *SyntaxError", err, err)
			}
			if got := errors.Is(err, ErrUnsupported); got != tc.unsupported {
				t.Fatalf("unsupported = %v, want %v (err: %v)", got, tc.unsupported, err)
			}
		})
	}
}

func TestEngineRun_MaxSavePoints(t *testing.T) {
	_, err := New(WithMaxSavePoints(3)).Run(context.Background(), []byte(controls+"x = 1 ~ ~ |"), nil)
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want *ModelError for too many save points", err)
	}

	if _, err := New(WithMaxSavePoints(0)).Run(context.Background(), []byte(controls+"x = 1 ~ ~ |"), nil); err != nil {
		t.Fatalf("uncapped Run: %v", err)
	}
}

func TestEngineRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Run(ctx, loadGrowth(t), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestEngineRun_Deterministic(t *testing.T) {
	src := loadGrowth(t)
	a, err := New().Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	b, err := New().Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
}
