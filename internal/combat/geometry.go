package combat

// Box is an axis-aligned rectangle in world space.
// X/Y is the top-left corner, W/H extend right and down.
type Box struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// Intersects reports whether the two boxes overlap.
// The comparisons are strict: boxes that only share an edge do not intersect.
func (b Box) Intersects(o Box) bool {
	return b.X < o.X+o.W &&
		b.X+b.W > o.X &&
		b.Y < o.Y+o.H &&
		b.Y+b.H > o.Y
}

// Right returns the x coordinate of the trailing edge.
func (b Box) Right() float64 { return b.X + b.W }

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}
