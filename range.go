package numguess

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultLow  = 1
	DefaultHigh = 10

	// MaxRangeSize caps the number of integers in a range. Every trial may ask the model once per integer.
	MaxRangeSize = 10000
)

// Range is the closed interval of integers both selectable by the model and guessable by the experiment.
type Range struct {
	Low  int `json:"low" yaml:"low"`
	High int `json:"high" yaml:"high"`
}

// DefaultRange returns [1, 10].
func DefaultRange() Range {
	return Range{Low: DefaultLow, High: DefaultHigh}
}

// NewRange returns a validated Range.
func NewRange(low, high int) (Range, error) {
	r := Range{Low: low, High: high}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate returns ErrInvalidRange unless Low < High and the range holds at most MaxRangeSize integers.
func (r Range) Validate() error {
	if r.Low >= r.High {
		return goerr.Wrap(ErrInvalidRange, "low must be less than high", goerr.V("low", r.Low), goerr.V("high", r.High))
	}
	if r.span() >= MaxRangeSize {
		return goerr.Wrap(ErrInvalidRange, "range is too wide",
			goerr.V("low", r.Low),
			goerr.V("high", r.High),
			goerr.V("max_size", MaxRangeSize),
		)
	}
	return nil
}

// span is High - Low computed without overflow; only meaningful when Low < High.
func (r Range) span() uint64 {
	return uint64(r.High) - uint64(r.Low)
}

// Size is the number of integers in the range, or 0 when the range is invalid.
func (r Range) Size() int {
	if r.Validate() != nil {
		return 0
	}
	return int(r.span()) + 1
}

// Contains reports whether n lies in the range.
func (r Range) Contains(n int) bool {
	return r.Low <= n && n <= r.High
}

// Values returns all integers of the range in ascending order.
func (r Range) Values() []int {
	size := r.Size()
	values := make([]int, 0, size)
	for i := range size {
		values = append(values, r.Low+i)
	}
	return values
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Low, r.High)
}
