package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Strategy returns how long to wait before attempt retryCount+1 and whether
// the retry budget is exhausted.
type Strategy interface {
	Sleep(retryCount uint) (time.Duration, bool)
}

type never struct{}

func NewNever() Strategy {
	return &never{}
}

func (nr *never) Sleep(uint) (time.Duration, bool) {
	return 0, true
}

type Entropy func(int64) int64

// FullJitter draws uniformly from [0, n).
func FullJitter(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return rand.Int63n(n)
}

type exponentialBackOff struct {
	base          time.Duration
	max           time.Duration
	maxRetryCount uint
	entropy       Entropy
}

func NewExponentialBackOff(base time.Duration, max time.Duration, maxRetryCount uint, entropy Entropy) Strategy {
	return &exponentialBackOff{
		base:          base,
		max:           max,
		maxRetryCount: maxRetryCount,
		entropy:       entropy,
	}
}

func (eb *exponentialBackOff) Sleep(retryCount uint) (time.Duration, bool) {
	if retryCount >= eb.maxRetryCount {
		return 0, true
	}

	entropy := eb.getEntropy()
	if retryCount >= 63 {
		return time.Duration(entropy(int64(eb.max))), false
	}

	delay, err := checkedMulInt64(1<<retryCount, int64(eb.base))
	if err != nil {
		return time.Duration(entropy(int64(eb.max))), false
	}
	return time.Duration(entropy(lesser(delay, int64(eb.max)))), false
}

func (eb *exponentialBackOff) getEntropy() Entropy {
	if eb.entropy == nil {
		return FullJitter
	}
	return eb.entropy
}

func lesser[T constraints.Ordered](l T, r T) T {
	if l > r {
		return r
	}
	return l
}

var OverflowError = errors.New("overflow")

func checkedMulInt64(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return l * r, nil
	}
	if l > math.MaxInt64/r {
		return 0, OverflowError
	}
	return l * r, nil
}
