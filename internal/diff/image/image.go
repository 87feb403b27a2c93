package image

import "image"

type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rectangle) Area() int {
	return r.Width * r.Height
}

// Bounds converts r to an image.Rectangle relative to origin.
func (r Rectangle) Bounds(origin image.Point) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Add(origin)
}

type DiffResult struct {
	// Baseline and Target are the encoded inputs with every region outlined.
	Baseline   []byte
	Target     []byte
	Score      float64
	Regions    []Rectangle
	DiffAmount float64
}

type Differ interface {
	Compare(baseline []byte, target []byte) (*DiffResult, error)
}
