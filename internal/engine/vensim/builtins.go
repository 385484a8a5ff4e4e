package vensim

import (
	"math"
)

type builtin struct {
	minArgs, maxArgs int
	// fn receives unevaluated arguments so conditionals stay lazy.
	fn func(s *step, args []node) (float64, error)
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"if then else": {3, 3, fnIfThenElse},
		"min":          {2, 2, strict2(math.Min)},
		"max":          {2, 2, strict2(math.Max)},
		"abs":          {1, 1, strict1(math.Abs)},
		"exp":          {1, 1, strict1(math.Exp)},
		"ln":           {1, 1, strict1(math.Log)},
		"sqrt":         {1, 1, strict1(math.Sqrt)},
		"sin":          {1, 1, strict1(math.Sin)},
		"cos":          {1, 1, strict1(math.Cos)},
		"tan":          {1, 1, strict1(math.Tan)},
		"arctan":       {1, 1, strict1(math.Atan)},
		"integer":      {1, 1, strict1(math.Trunc)},
		"power":        {2, 2, strict2(math.Pow)},
		"log": {2, 2, strict2(func(x, base float64) float64 {
			return math.Log(x) / math.Log(base)
		})},
		"modulo": {2, 2, strict2(func(a, b float64) float64 {
			return a - b*math.Floor(a/b)
		})},
		"xidz":        {3, 3, fnXIDZ},
		"zidz":        {2, 2, fnZIDZ},
		"step":        {2, 2, fnStep},
		"pulse":       {2, 2, fnPulse},
		"pulse train": {4, 4, fnPulseTrain},
		"ramp":        {3, 3, fnRamp},
	}
}

func evalArgs(s *step, args []node) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := s.eval(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func strict1(f func(float64) float64) func(*step, []node) (float64, error) {
	return func(s *step, args []node) (float64, error) {
		v, err := evalArgs(s, args)
		if err != nil {
			return 0, err
		}
		return f(v[0]), nil
	}
}

func strict2(f func(float64, float64) float64) func(*step, []node) (float64, error) {
	return func(s *step, args []node) (float64, error) {
		v, err := evalArgs(s, args)
		if err != nil {
			return 0, err
		}
		return f(v[0], v[1]), nil
	}
}

func fnIfThenElse(s *step, args []node) (float64, error) {
	cond, err := s.eval(args[0])
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return s.eval(args[1])
	}
	return s.eval(args[2])
}

func fnXIDZ(s *step, args []node) (float64, error) {
	v, err := evalArgs(s, args)
	if err != nil {
		return 0, err
	}
	if v[1] == 0 {
		return v[2], nil
	}
	return v[0] / v[1], nil
}

func fnZIDZ(s *step, args []node) (float64, error) {
	v, err := evalArgs(s, args)
	if err != nil {
		return 0, err
	}
	if v[1] == 0 {
		return 0, nil
	}
	return v[0] / v[1], nil
}

// fnStep is STEP(height, start): height from start onward, inclusive.
func fnStep(s *step, args []node) (float64, error) {
	v, err := evalArgs(s, args)
	if err != nil {
		return 0, err
	}
	if s.time >= v[1] {
		return v[0], nil
	}
	return 0, nil
}

// fnPulse is PULSE(start, width): 1 on [start, start+width). A zero width
// lasts one time step.
func fnPulse(s *step, args []node) (float64, error) {
	v, err := evalArgs(s, args)
	if err != nil {
		return 0, err
	}
	start, width := v[0], v[1]
	if width <= 0 {
		width = s.dt
	}
	if s.time >= start && s.time < start+width {
		return 1, nil
	}
	return 0, nil
}

// fnPulseTrain is PULSE TRAIN(start, width, interval, end).
func fnPulseTrain(s *step, args []node) (float64, error) {
	v, err := evalArgs(s, args)
	if err != nil {
		return 0, err
	}
	start, width, interval, end := v[0], v[1], v[2], v[3]
	if width <= 0 {
		width = s.dt
	}
	if s.time < start || s.time > end {
		return 0, nil
	}
	if interval <= 0 {
		if s.time < start+width {
			return 1, nil
		}
		return 0, nil
	}
	if math.Mod(s.time-start, interval) < width {
		return 1, nil
	}
	return 0, nil
}

// fnRamp is RAMP(slope, start, end).
func fnRamp(s *step, args []node) (float64, error) {
	v, err := evalArgs(s, args)
	if err != nil {
		return 0, err
	}
	slope, start, end := v[0], v[1], v[2]
	switch {
	case s.time < start:
		return 0, nil
	case s.time > end:
		return slope * (end - start), nil
	}
	return slope * (s.time - start), nil
}
