package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD  OptimizerType = "sgd"
	OptAdam OptimizerType = "adam"
)

// adamEpsilon keeps the Adam step finite when the second moment is zero.
const adamEpsilon = 1e-7

// Defaults used when an Optimizer is built with zero fields.
var DefaultAdamConfig = Optimizer{
	Type:         OptAdam,
	LearningStep: 0.001,
	Beta1:        0.9,
	Beta2:        0.999,
}

// DefaultOptimizer is plain SGD with a 0.01 step.
var DefaultOptimizer = SGD(0.01)

type OptimizerType string

// Optimizer selects the parameter update rule. It is a plain value copied
// into every update; per-parameter state lives in the Layer.
type Optimizer struct {
	Type         OptimizerType
	LearningStep float64
	Beta1        float64 // Adam only
	Beta2        float64 // Adam only
}

// SGD returns a plain gradient descent optimizer.
func SGD(learningStep float64) Optimizer {
	return Optimizer{Type: OptSGD, LearningStep: learningStep}
}

// Adam returns an Adam optimizer. Unless all three values are zero, which
// selects DefaultAdamConfig, they are used as given, zero betas included.
func Adam(learningStep, beta1, beta2 float64) Optimizer {
	return Optimizer{Type: OptAdam, LearningStep: learningStep, Beta1: beta1, Beta2: beta2}
}

// ParseOptimizer maps a command line name to an Optimizer with default betas.
func ParseOptimizer(name string, learningStep float64) (Optimizer, error) {
	switch OptimizerType(name) {
	case OptSGD:
		return SGD(learningStep), nil
	case OptAdam:
		return Adam(learningStep, DefaultAdamConfig.Beta1, DefaultAdamConfig.Beta2), nil
	default:
		return Optimizer{}, fmt.Errorf("unknown optimizer %q (want %q or %q)", name, OptSGD, OptAdam)
	}
}

func (o Optimizer) String() string {
	if o.Type == OptAdam {
		return fmt.Sprintf("adam(step=%g, beta1=%g, beta2=%g)", o.LearningStep, o.Beta1, o.Beta2)
	}
	return fmt.Sprintf("sgd(step=%g)", o.LearningStep)
}

// withDefaults fills in an optimizer whose hyperparameters are all unset.
// Once any of them is given, the rest are used as they are, so an explicit
// zero beta survives.
func (o Optimizer) withDefaults() Optimizer {
	switch o.Type {
	case OptAdam:
		if o.LearningStep == 0 && o.Beta1 == 0 && o.Beta2 == 0 {
			o = DefaultAdamConfig
		}
	case OptSGD:
		if o.LearningStep == 0 {
			o.LearningStep = DefaultOptimizer.LearningStep
		}
	default:
		// Unknown or empty type falls back to SGD.
		step := o.LearningStep
		o = DefaultOptimizer
		if step != 0 {
			o.LearningStep = step
		}
	}
	return o
}

// adamState holds the first and second moment estimates of one parameter
// tensor. Both buffers share the parameter's shape and layout.
type adamState struct {
	m, v *Matrix
}

func newAdamState(param *Matrix) *adamState {
	zero := func() *Matrix {
		z := NewMatrix(param.height, param.width)
		z.transposed = param.transposed
		return z
	}
	return &adamState{m: zero(), v: zero()}
}

// update applies one step of o to param in place. state is created on the
// first Adam step and left untouched by SGD.
func (o Optimizer) update(param, grad *Matrix, state **adamState, iteration int) {
	g := param.aligned("Optimizer.update", grad)

	switch o.Type {
	case OptAdam:
		if iteration < 1 {
			panic(fmt.Sprintf("ml: Adam: iteration must be >= 1, got %d", iteration))
		}
		if *state == nil {
			*state = newAdamState(param)
		}
		s := *state
		m := param.aligned("Adam first moment", s.m)
		v := param.aligned("Adam second moment", s.v)

		t := float64(iteration)
		correction1 := 1.0 - math.Pow(o.Beta1, t)
		correction2 := 1.0 - math.Pow(o.Beta2, t)

		for i, gi := range g {
			m[i] = o.Beta1*m[i] + (1.0-o.Beta1)*gi
			v[i] = o.Beta2*v[i] + (1.0-o.Beta2)*(gi*gi)

			mHat := m[i] / correction1
			vHat := v[i] / correction2

			param.data[i] -= o.LearningStep * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}

		// Moments that arrived in a different layout were copied by aligned.
		if s.m.transposed != param.transposed {
			s.m = &Matrix{height: param.height, width: param.width, transposed: param.transposed, data: m}
		}
		if s.v.transposed != param.transposed {
			s.v = &Matrix{height: param.height, width: param.width, transposed: param.transposed, data: v}
		}

	default:
		// param = param - step * grad
		floats.AddScaled(param.data, -o.LearningStep, g)
	}
}
