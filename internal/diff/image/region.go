package image

// Extract returns the bounding rectangle of every 8-connected foreground
// component of mask that is not nested inside a hole of another component.
// Rectangles with an area below minArea are dropped. Components are reported
// in raster order of their first pixel.
func Extract(mask *Mask, minArea int) []Rectangle {
	width := mask.Width
	height := mask.Height
	if width == 0 || height == 0 {
		return nil
	}

	outside := markOutside(mask)
	visited := make([]bool, len(mask.Pix))
	queue := make([]int, 0, 64)

	var rectangles []Rectangle
	for start, foreground := range mask.Pix {
		if !foreground || visited[start] {
			continue
		}

		// The pixel above the first pixel of a component is background; the
		// component is external iff that background reaches the frame edge.
		external := start < width || outside[start-width]

		minX, minY := start%width, start/width
		maxX, maxY := minX, minY

		queue = append(queue[:0], start)
		visited[start] = true
		for head := 0; head < len(queue); head++ {
			i := queue[head]
			x, y := i%width, i/width

			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			// Check 8 neighbors
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}

					nx := x + dx
					ny := y + dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					n := ny*width + nx
					if mask.Pix[n] && !visited[n] {
						visited[n] = true
						queue = append(queue, n)
					}
				}
			}
		}

		if !external {
			continue
		}

		rect := Rectangle{
			X:      minX,
			Y:      minY,
			Width:  maxX - minX + 1,
			Height: maxY - minY + 1,
		}
		if rect.Area() < minArea {
			continue
		}
		rectangles = append(rectangles, rect)
	}

	return rectangles
}

// markOutside flags the background pixels 4-connected to the frame edge.
func markOutside(mask *Mask) []bool {
	width := mask.Width
	height := mask.Height
	outside := make([]bool, len(mask.Pix))
	queue := make([]int, 0, 2*(width+height))

	push := func(i int) {
		if !mask.Pix[i] && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}

	for x := 0; x < width; x++ {
		push(x)
		push((height-1)*width + x)
	}
	for y := 0; y < height; y++ {
		push(y * width)
		push(y*width + width - 1)
	}

	for head := 0; head < len(queue); head++ {
		i := queue[head]
		x, y := i%width, i/width
		if x > 0 {
			push(i - 1)
		}
		if x < width-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - width)
		}
		if y < height-1 {
			push(i + width)
		}
	}

	return outside
}

// Coverage reports the share of the frame covered by the union of rectangles.
func Coverage(rectangles []Rectangle, width int, height int) float64 {
	if width == 0 || height == 0 {
		return 0.0
	}

	covered := make([]bool, width*height)
	count := 0
	for _, r := range rectangles {
		for y := max(r.Y, 0); y < min(r.Y+r.Height, height); y++ {
			for x := max(r.X, 0); x < min(r.X+r.Width, width); x++ {
				if !covered[y*width+x] {
					covered[y*width+x] = true
					count++
				}
			}
		}
	}

	return float64(count) / float64(width*height)
}
