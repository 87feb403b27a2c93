package image

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestReflect(t *testing.T) {
	type in struct {
		first  int
		second int
	}

	type want struct {
		first int
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{2, 5},
			want{2},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{-1, 5},
			want{0},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{-3, 5},
			want{2},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{5, 5},
			want{4},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{7, 5},
			want{2},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{-4, 1},
			want{0},
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := reflect(in.first, in.second)
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestBoxSum(t *testing.T) {
	src := []int64{
		1, 2, 3,
		4, 5, 6,
	}

	got := boxSum(src, 3, 2, 1)

	// Row sums with reflection: [1 1 2]=4 [1 2 3]=6 [2 3 3]=8, then rows [r0 r0 r1] and [r0 r1 r1].
	want := []int64{
		4 + 4 + 13, 6 + 6 + 15, 8 + 8 + 17,
		4 + 13 + 13, 6 + 15 + 15, 8 + 17 + 17,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBoxSum_MatchesDirectSum(t *testing.T) {
	direct := func(src []int64, width int, height int, radius int) []int64 {
		dst := make([]int64, len(src))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var s int64
				for dy := -radius; dy <= radius; dy++ {
					for dx := -radius; dx <= radius; dx++ {
						s += src[reflect(y+dy, height)*width+reflect(x+dx, width)]
					}
				}
				dst[y*width+x] = s
			}
		}
		return dst
	}

	for _, size := range []struct{ width, height int }{{1, 1}, {5, 3}, {9, 13}, {17, 4}} {
		src := make([]int64, size.width*size.height)
		for i := range src {
			src[i] = int64(i*131%251) * int64(i*17%13+1)
		}
		for radius := 0; radius <= 2*size.width+size.height; radius++ {
			want := direct(src, size.width, size.height, radius)
			got := boxSum(src, size.width, size.height, radius)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("%dx%d radius %d (-want +got):\n%s", size.width, size.height, radius, diff)
			}
		}
	}
}

func TestSimilarity_WindowSizeDoesNotDominateCost(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison")
	}

	a := NewGray(300, 300)
	b := NewGray(300, 300)
	for i := range a.Pix {
		a.Pix[i] = uint8(i * 37 % 256)
		b.Pix[i] = uint8(i * 53 % 256)
	}

	fastest := func(windowSize int) time.Duration {
		best := time.Duration(math.MaxInt64)
		for i := 0; i < 3; i++ {
			start := time.Now()
			if _, _, err := Similarity(a, b, windowSize); err != nil {
				t.Fatalf("window %d: unexpected error: %v", windowSize, err)
			}
			if d := time.Since(start); d < best {
				best = d
			}
		}
		return best
	}

	small := fastest(7)
	large := fastest(299)
	if large > 4*small+50*time.Millisecond {
		t.Errorf("Expected window 299 to cost about as much as window 7, got %v and %v", large, small)
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		g := NewGray(16, 16)
		for i := range g.Pix {
			g.Pix[i] = uint8(i * 37 % 256)
		}

		score, m, err := Similarity(g, g, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if score != 1.0 {
			t.Errorf("Expected score to be 1.0, got %f", score)
		}
		for i, v := range m.Rescale().Pix {
			if v != 255 {
				t.Fatalf("Expected rescaled value 255 at %d, got %d", i, v)
			}
		}
	})

	t.Run("Inverted", func(t *testing.T) {
		a := NewGray(16, 16)
		b := NewGray(16, 16)
		for i := range a.Pix {
			a.Pix[i] = uint8(i % 2 * 255)
			b.Pix[i] = 255 - a.Pix[i]
		}

		score, m, err := Similarity(a, b, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if score >= 0 || score < -1 {
			t.Errorf("Expected a negative score, got %f", score)
		}
		for i, v := range m.Rescale().Pix {
			if v != 0 {
				t.Fatalf("Expected negative similarity to clamp to 0 at %d, got %d", i, v)
			}
		}
	})

	t.Run("Symmetric", func(t *testing.T) {
		a := NewGray(20, 12)
		b := NewGray(20, 12)
		for i := range a.Pix {
			a.Pix[i] = uint8(i * 13 % 256)
			b.Pix[i] = uint8(i * 29 % 256)
		}

		scoreAB, mapAB, err := Similarity(a, b, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		scoreBA, mapBA, err := Similarity(b, a, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if scoreAB != scoreBA {
			t.Errorf("Expected identical scores, got %f and %f", scoreAB, scoreBA)
		}
		if diff := cmp.Diff(mapAB, mapBA); diff != "" {
			t.Errorf("(-ab +ba):\n%s", diff)
		}
		if math.Abs(scoreAB) > 1 {
			t.Errorf("Expected score within [-1, 1], got %f", scoreAB)
		}
	})

	t.Run("InvalidWindowSize", func(t *testing.T) {
		g := NewGray(16, 16)

		for _, windowSize := range []int{0, 1, 4, -7} {
			if _, _, err := Similarity(g, g, windowSize); !errors.Is(err, ErrInvalidWindowSize) {
				t.Errorf("window %d: Expected ErrInvalidWindowSize, got %v", windowSize, err)
			}
		}
	})

	t.Run("TooSmall", func(t *testing.T) {
		g := NewGray(16, 6)

		if _, _, err := Similarity(g, g, 7); !errors.Is(err, ErrImageTooSmall) {
			t.Errorf("Expected ErrImageTooSmall, got %v", err)
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		var shapeErr *ShapeMismatchError
		if _, _, err := Similarity(NewGray(8, 8), NewGray(8, 9), 3); !errors.As(err, &shapeErr) {
			t.Errorf("Expected ShapeMismatchError, got %v", err)
		}
	})
}

func BenchmarkSimilarity(b *testing.B) {
	x := NewGray(600, 600)
	y := NewGray(600, 600)
	for i := range x.Pix {
		x.Pix[i] = uint8(i * 37 % 256)
		y.Pix[i] = uint8(i * 53 % 256)
	}

	for _, windowSize := range []int{7, 63, 301, 599} {
		b.Run(fmt.Sprintf("Window%d", windowSize), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, _, err := Similarity(x, y, windowSize); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
