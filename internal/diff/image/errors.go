package image

import (
	"errors"
	"fmt"
	"image"
)

var (
	ErrInvalidWindowSize = errors.New("window size must be an odd number greater than or equal to 3")
	ErrImageTooSmall     = errors.New("image is smaller than the similarity window")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrImageTooLarge     = errors.New("image exceeds the pixel limit")
	ErrInvalidOptions    = errors.New("invalid diff options")
)

// DecodeError reports an input that could not be parsed as an image.
type DecodeError struct {
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s image: %v", e.Input, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError reports two inputs whose pixel dimensions differ.
type ShapeMismatchError struct {
	Baseline image.Point
	Target   image.Point
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("image dimensions differ: baseline is %dx%d, target is %dx%d", e.Baseline.X, e.Baseline.Y, e.Target.X, e.Target.Y)
}

type EncodeError struct {
	Output string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s image: %v", e.Output, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
