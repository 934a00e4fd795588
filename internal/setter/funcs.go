package setter

import (
	"fmt"
	"strings"
)

// EpochFuncFromConfig builds a named epoch function for a FuncPolicy.
//
//	const       keep the current value
//	exp_decay   multiply by param after every epoch
//	step_decay  multiply by param every `every` epochs
//	inv_decay   base / (1 + param*epoch), base being the value seen first
func EpochFuncFromConfig(name string, param float64, every int) (EpochFunc, error) {
	switch NormalizeFuncName(name) {
	case "const":
		return func(_ int, current float64) (float64, error) { return current, nil }, nil
	case "exp_decay":
		if param <= 0 {
			return nil, fmt.Errorf("exp_decay requires param > 0, got %g", param)
		}
		return func(epoch int, current float64) (float64, error) {
			if epoch == 0 {
				return current, nil
			}
			return current * param, nil
		}, nil
	case "step_decay":
		if param <= 0 {
			return nil, fmt.Errorf("step_decay requires param > 0, got %g", param)
		}
		if every <= 0 {
			every = 1
		}
		return func(epoch int, current float64) (float64, error) {
			if epoch > 0 && epoch%every == 0 {
				return current * param, nil
			}
			return current, nil
		}, nil
	case "inv_decay":
		if param < 0 {
			return nil, fmt.Errorf("inv_decay requires param >= 0, got %g", param)
		}
		var (
			base float64
			seen bool
		)
		return func(epoch int, current float64) (float64, error) {
			if !seen {
				base, seen = current, true
			}
			return base / (1 + param*float64(epoch)), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported epoch func: %s", name)
	}
}

// ValueFuncFromConfig builds a named value function for a StatMonitorPolicy.
func ValueFuncFromConfig(name string, param float64) (ValueFunc, error) {
	switch NormalizeFuncName(name) {
	case "scale":
		return func(v float64) float64 { return v * param }, nil
	case "add":
		return func(v float64) float64 { return v + param }, nil
	case "set":
		return func(float64) float64 { return param }, nil
	default:
		return nil, fmt.Errorf("unsupported value func: %s", name)
	}
}

func NormalizeFuncName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "const", "constant", "keep":
		return "const"
	case "exp_decay", "exponential":
		return "exp_decay"
	case "step_decay", "step":
		return "step_decay"
	case "inv_decay", "inverse":
		return "inv_decay"
	case "scale", "mul", "multiply":
		return "scale"
	case "add", "offset":
		return "add"
	case "set", "assign":
		return "set"
	default:
		return name
	}
}
