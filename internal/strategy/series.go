package strategy

import (
	"fmt"
	"math"

	"github.com/d5/tengo/v2"

	"github.com/newthinker/prism/internal/indicator"
)

// maxSeriesLen bounds arrays allocated on behalf of a script.
const maxSeriesLen = 1 << 22

// seriesModule returns the numeric helpers bound as import("series").
// Window outputs keep the input length and are NaN-padded.
func seriesModule() map[string]tengo.Object {
	return map[string]tengo.Object{
		"zeros":       &tengo.UserFunction{Name: "zeros", Value: seriesZeros},
		"full":        &tengo.UserFunction{Name: "full", Value: seriesFull},
		"shift":       &tengo.UserFunction{Name: "shift", Value: seriesShift},
		"sma":         &tengo.UserFunction{Name: "sma", Value: windowFunc(func(v []float64, n int) []float64 { return indicator.Align(indicator.SMA(v, n), len(v)) })},
		"ema":         &tengo.UserFunction{Name: "ema", Value: windowFunc(indicator.EWM)},
		"rolling_max": &tengo.UserFunction{Name: "rolling_max", Value: windowFunc(indicator.RollingMax)},
		"rolling_min": &tengo.UserFunction{Name: "rolling_min", Value: windowFunc(indicator.RollingMin)},
		"rolling_std": &tengo.UserFunction{Name: "rolling_std", Value: windowFunc(indicator.RollingStd)},
		"crossover":   &tengo.UserFunction{Name: "crossover", Value: crossFunc(func(pa, pb, a, b float64) bool { return pa <= pb && a > b })},
		"crossunder":  &tengo.UserFunction{Name: "crossunder", Value: crossFunc(func(pa, pb, a, b float64) bool { return pa >= pb && a < b })},
		"nan":         &tengo.UserFunction{Name: "nan", Value: seriesNaN},
		"is_nan":      &tengo.UserFunction{Name: "is_nan", Value: seriesIsNaN},
	}
}

func seriesZeros(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	n, err := lengthArg("first", args[0])
	if err != nil {
		return nil, err
	}
	zero := &tengo.Int{Value: 0}
	out := make([]tengo.Object, n)
	for i := range out {
		out[i] = zero
	}
	return &tengo.Array{Value: out}, nil
}

func seriesFull(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	n, err := lengthArg("first", args[0])
	if err != nil {
		return nil, err
	}
	if _, ok := tengo.ToFloat64(args[1]); !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "int/float", Found: args[1].TypeName()}
	}
	out := make([]tengo.Object, n)
	for i := range out {
		out[i] = args[1]
	}
	return &tengo.Array{Value: out}, nil
}

func seriesShift(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	values, err := floatsArg("first", args[0])
	if err != nil {
		return nil, err
	}
	k, ok := tengo.ToInt(args[1])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "int", Found: args[1].TypeName()}
	}
	out := make([]float64, len(values))
	for i := range out {
		j := i - k
		if j < 0 || j >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[j]
	}
	return floatsObject(out), nil
}

func windowFunc(f func([]float64, int) []float64) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 2 {
			return nil, tengo.ErrWrongNumArguments
		}
		values, err := floatsArg("first", args[0])
		if err != nil {
			return nil, err
		}
		period, ok := tengo.ToInt(args[1])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "int", Found: args[1].TypeName()}
		}
		if period <= 0 {
			return nil, fmt.Errorf("window must be positive, got %d", period)
		}
		return floatsObject(f(values, period)), nil
	}
}

func crossFunc(cross func(pa, pb, a, b float64) bool) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 2 {
			return nil, tengo.ErrWrongNumArguments
		}
		a, err := floatsArg("first", args[0])
		if err != nil {
			return nil, err
		}
		var b []float64
		if level, ok := tengo.ToFloat64(args[1]); ok {
			b = make([]float64, len(a))
			for i := range b {
				b[i] = level
			}
		} else if b, err = floatsArg("second", args[1]); err != nil {
			return nil, err
		}
		if len(a) != len(b) {
			return nil, fmt.Errorf("series lengths differ: %d and %d", len(a), len(b))
		}

		out := make([]tengo.Object, len(a))
		for i := range out {
			out[i] = tengo.FalseValue
			if i > 0 && cross(a[i-1], b[i-1], a[i], b[i]) {
				out[i] = tengo.TrueValue
			}
		}
		return &tengo.Array{Value: out}, nil
	}
}

func seriesNaN(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 0 {
		return nil, tengo.ErrWrongNumArguments
	}
	return &tengo.Float{Value: math.NaN()}, nil
}

func seriesIsNaN(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	f, ok := tengo.ToFloat64(args[0])
	if ok && math.IsNaN(f) {
		return tengo.TrueValue, nil
	}
	return tengo.FalseValue, nil
}

func lengthArg(name string, o tengo.Object) (int, error) {
	n, ok := tengo.ToInt(o)
	if !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: name, Expected: "int", Found: o.TypeName()}
	}
	if n < 0 || n > maxSeriesLen {
		return 0, fmt.Errorf("length %d out of range", n)
	}
	return n, nil
}

func floatsArg(name string, o tengo.Object) ([]float64, error) {
	var items []tengo.Object
	switch v := o.(type) {
	case *tengo.Array:
		items = v.Value
	case *tengo.ImmutableArray:
		items = v.Value
	default:
		return nil, tengo.ErrInvalidArgumentType{Name: name, Expected: "array", Found: o.TypeName()}
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := tengo.ToFloat64(item)
		if !ok {
			return nil, fmt.Errorf("%s argument element %d: expected number, found %s", name, i, item.TypeName())
		}
		out[i] = f
	}
	return out, nil
}

func floatsObject(values []float64) *tengo.Array {
	out := make([]tengo.Object, len(values))
	for i, v := range values {
		out[i] = &tengo.Float{Value: v}
	}
	return &tengo.Array{Value: out}
}

func immutableFloats(values []float64) *tengo.ImmutableArray {
	out := make([]tengo.Object, len(values))
	for i, v := range values {
		out[i] = &tengo.Float{Value: v}
	}
	return &tengo.ImmutableArray{Value: out}
}
