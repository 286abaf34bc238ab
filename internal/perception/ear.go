package perception

import "math"

// Point is one facial landmark in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EyeAspectRatio computes the ratio of the two vertical eye distances to the
// horizontal one over the usual six eye landmarks (p1..p6, clockwise from
// the outer corner). It falls towards zero as the eye closes. ok is false
// when the landmarks are unusable.
func EyeAspectRatio(eye []Point) (ear float64, ok bool) {
	if len(eye) != 6 {
		return 0, false
	}
	a := dist(eye[1], eye[5])
	b := dist(eye[2], eye[4])
	c := dist(eye[0], eye[3])
	if c == 0 {
		return 0, false
	}
	return (a + b) / (2 * c), true
}

func dist(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}
