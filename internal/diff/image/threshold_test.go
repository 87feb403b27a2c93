package image

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func grayFromValues(width int, values ...uint8) *Gray {
	return &Gray{
		Pix:    values,
		Width:  width,
		Height: len(values) / width,
	}
}

func TestOtsu(t *testing.T) {
	t.Run("Uniform", func(t *testing.T) {
		g := grayFromValues(4, 255, 255, 255, 255, 255, 255, 255, 255)

		if got := (Otsu{}).Threshold(g); got != 0 {
			t.Errorf("Expected threshold to be 0, got %d", got)
		}
		if mask := Binarize(g, Otsu{}); len(Extract(mask, 0)) != 0 {
			t.Errorf("Expected no foreground for a uniform image")
		}
	})

	t.Run("Bimodal", func(t *testing.T) {
		g := grayFromValues(4, 10, 12, 14, 200, 210, 220, 230, 240)

		got := (Otsu{}).Threshold(g)
		if got < 14 || got >= 200 {
			t.Errorf("Expected threshold between the two modes, got %d", got)
		}
	})

	t.Run("AllZero", func(t *testing.T) {
		g := grayFromValues(2, 0, 0, 0, 0)

		mask := Binarize(g, Otsu{})
		if diff := cmp.Diff([]bool{true, true, true, true}, mask.Pix); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})
}

func TestBinarize(t *testing.T) {
	g := grayFromValues(3, 0, 100, 101, 255, 50, 100)

	got := Binarize(g, Fixed{Value: 100})

	want := &Mask{
		Pix:    []bool{true, true, false, false, true, true},
		Width:  3,
		Height: 2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestNewThresholderFromString(t *testing.T) {
	type in struct {
		first string
	}

	type want struct {
		first Thresholder
	}

	tests := []struct {
		name            string
		in              in
		want            want
		wantErrorString string
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"",
			},
			want{
				Otsu{},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"otsu",
			},
			want{
				Otsu{},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"fixed:128",
			},
			want{
				Fixed{Value: 128},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"fixed:300",
			},
			want{
				nil,
			},
			`invalid fixed threshold "fixed:300": strconv.ParseUint: parsing "300": value out of range`,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"adaptive",
			},
			want{
				nil,
			},
			"unknown thresholder: adaptive",
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		wantErrorString := tt.wantErrorString
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := NewThresholderFromString(in.first)
			if wantErrorString != "" {
				if err == nil || err.Error() != wantErrorString {
					t.Errorf("want error %q, got %v", wantErrorString, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
