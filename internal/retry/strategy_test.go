package retry_test

import (
	"fmt"
	"image-diff/internal/retry"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func identity(i int64) int64 {
	return i
}

func TestRetrySleep(t *testing.T) {
	type in struct {
		first uint
	}

	type want struct {
		first  time.Duration
		second bool
	}

	tests := []struct {
		name     string
		receiver retry.Strategy
		in       in
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewNever(),
			in{0},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(10*time.Millisecond, time.Second, 3, identity),
			in{0},
			want{10 * time.Millisecond, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(10*time.Millisecond, time.Second, 3, identity),
			in{2},
			want{40 * time.Millisecond, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(10*time.Millisecond, time.Second, 3, identity),
			in{3},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(10*time.Millisecond, 50*time.Millisecond, 10, identity),
			in{5},
			want{50 * time.Millisecond, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Duration(math.MaxInt64/2), time.Duration(math.MaxInt64), 100, identity),
			in{2},
			want{time.Duration(math.MaxInt64), false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Millisecond, time.Second, 100, identity),
			in{70},
			want{time.Second, false},
		},
	}
	for _, tt := range tests {
		name := tt.name
		receiver := tt.receiver
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, exceeded := receiver.Sleep(in.first)
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.second, exceeded); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFullJitter(t *testing.T) {
	if got := retry.FullJitter(0); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	for i := 0; i < 100; i++ {
		if got := retry.FullJitter(10); got < 0 || got >= 10 {
			t.Fatalf("Expected value in [0, 10), got %d", got)
		}
	}
}
