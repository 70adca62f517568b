// Package calc holds the pure numeric reducers consumed by aggregation
// results. Delegates tolerate mixed-type input: elements that do not coerce
// to a number are skipped, never fatal.
package calc

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/respstack/respstats/internal/models"
)

// Delegate reduces a value list to a single number.
type Delegate interface {
	Name() string
	Calculate(values []models.Value) float64
}

// Parameterized is implemented by delegates taking a numeric parameter
// (Percentile, MeanPlusMinusSDs).
type Parameterized interface {
	SetParam(p float64) error
}

// Factory builds a fresh delegate instance.
type Factory func() Delegate

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a delegate factory under its name.
func Register(name string, f Factory) {
	registryMu.Lock()
	registry[name] = f
	registryMu.Unlock()
}

// New builds the named delegate; unknown names are a caller error.
func New(name string) (Delegate, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown calculation delegate %q", name)
	}
	return f(), nil
}

func init() {
	Register("Count", func() Delegate { return count{name: "Count"} })
	Register("None", func() Delegate { return count{name: "None"} })
	Register("Mean", func() Delegate { return mean{} })
	Register("Median", func() Delegate { return median{} })
	Register("Sum", func() Delegate { return sum{} })
	Register("Percentile", func() Delegate { return &percentile{p: -1} })
	Register("Maximum", func() Delegate { return maximum{} })
	Register("Minimum", func() Delegate { return minimum{} })
	Register("StandardDeviation", func() Delegate { return stddev{} })
	Register("MeanPlusMinusSDs", func() Delegate { return &meanPlusSDs{p: math.NaN()} })
}

// floats extracts the coercible elements in order.
func floats(values []models.Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.AsFloat(); ok {
			out = append(out, f)
		}
	}
	return out
}

// count reports the raw list length, coercible or not. Registered both as
// Count and as the None placeholder.
type count struct{ name string }

func (c count) Name() string { return c.name }

func (count) Calculate(values []models.Value) float64 { return float64(len(values)) }

type mean struct{}

func (mean) Name() string { return "Mean" }

// Calculate returns -1 when no element is coercible.
func (mean) Calculate(values []models.Value) float64 {
	nums := floats(values)
	if len(nums) == 0 {
		return -1
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total / float64(len(nums))
}

// median always selects the upper middle element for even-length input
// (index ceil((n-1)/2) of the ascending sort, no averaging). Consumers depend
// on the exact element value, so this is deliberate: Median([1,2,3,4]) == 3.
type median struct{}

func (median) Name() string { return "Median" }

func (median) Calculate(values []models.Value) float64 {
	nums := floats(values)
	if len(nums) == 0 {
		return 0
	}
	sort.Float64s(nums)
	return nums[len(nums)/2]
}

type sum struct{}

func (sum) Name() string { return "Sum" }

func (sum) Calculate(values []models.Value) float64 {
	total := 0.0
	for _, n := range floats(values) {
		total += n
	}
	return total
}

// percentile selects the element at index ceil((n-1)*p/100) of the ascending
// sort. An unset or out-of-range parameter yields -1.
type percentile struct {
	p float64
}

func (*percentile) Name() string { return "Percentile" }

func (d *percentile) SetParam(p float64) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("percentile parameter %v out of range [0,100]", p)
	}
	d.p = p
	return nil
}

func (d *percentile) Calculate(values []models.Value) float64 {
	if d.p < 0 || d.p > 100 {
		return -1
	}
	nums := floats(values)
	if len(nums) == 0 {
		return 0
	}
	sort.Float64s(nums)
	index := int(math.Ceil(float64(len(nums)-1) * d.p / 100))
	return nums[index]
}

type maximum struct{}

func (maximum) Name() string { return "Maximum" }

// Calculate floors the result at 0; an all-uncoercible list also yields 0.
func (maximum) Calculate(values []models.Value) float64 {
	result := 0.0
	for _, n := range floats(values) {
		if n > result {
			result = n
		}
	}
	return result
}

type minimum struct{}

func (minimum) Name() string { return "Minimum" }

// Calculate returns -1 when no element is coercible.
func (minimum) Calculate(values []models.Value) float64 {
	nums := floats(values)
	if len(nums) == 0 {
		return -1
	}
	result := nums[0]
	for _, n := range nums[1:] {
		if n < result {
			result = n
		}
	}
	return result
}

// stddev is the sample standard deviation (n-1 denominator).
type stddev struct{}

func (stddev) Name() string { return "StandardDeviation" }

func (stddev) Calculate(values []models.Value) float64 {
	return sampleStdDev(floats(values))
}

func sampleStdDev(nums []float64) float64 {
	if len(nums) <= 1 {
		return 0
	}
	meanVal := 0.0
	for _, n := range nums {
		meanVal += n
	}
	meanVal /= float64(len(nums))

	variance := 0.0
	for _, n := range nums {
		variance += (n - meanVal) * (n - meanVal)
	}
	variance /= float64(len(nums) - 1)
	return math.Sqrt(variance)
}

// meanPlusSDs computes mean + stdev * (param/100). NaN when the parameter was
// never set or nothing coerces.
type meanPlusSDs struct {
	p float64
}

func (*meanPlusSDs) Name() string { return "MeanPlusMinusSDs" }

func (d *meanPlusSDs) SetParam(p float64) error {
	d.p = p
	return nil
}

func (d *meanPlusSDs) Calculate(values []models.Value) float64 {
	if math.IsNaN(d.p) {
		return math.NaN()
	}
	nums := floats(values)
	if len(nums) == 0 {
		return math.NaN()
	}
	meanVal := 0.0
	for _, n := range nums {
		meanVal += n
	}
	meanVal /= float64(len(nums))
	return meanVal + sampleStdDev(nums)*(d.p/100)
}
