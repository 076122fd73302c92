package maskedit

// Point is a cursor position in plane coordinates: X is the column, Y the row
type Point struct {
	X, Y float64
}

// PointInPolygon tests p against the closed ring through the vertices using
// ray casting (even-odd rule). Fewer than 3 vertices contain nothing.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// ray from p towards +X crosses edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// rasterize returns the flat (row*cols+col) indices of the pixel centers of
// a rows x cols plane lying inside the polygon
func rasterize(polygon []Point, rows, cols int) []int {
	if len(polygon) < 3 {
		return nil
	}
	minX, maxX := polygon[0].X, polygon[0].X
	minY, maxY := polygon[0].Y, polygon[0].Y
	for _, v := range polygon[1:] {
		minX, maxX = min(minX, v.X), max(maxX, v.X)
		minY, maxY = min(minY, v.Y), max(maxY, v.Y)
	}

	r0, r1 := max(int(minY), 0), min(int(maxY)+1, rows-1)
	c0, c1 := max(int(minX), 0), min(int(maxX)+1, cols-1)
	var inside []int
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			if PointInPolygon(Point{X: float64(c), Y: float64(r)}, polygon) {
				inside = append(inside, r*cols+c)
			}
		}
	}
	return inside
}
