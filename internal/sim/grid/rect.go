package grid

import "fmt"

// Rect is an axis-aligned rectangle on the map, corners inclusive.
// Coordinates are lattice points, so (1,1)-(2,2) covers one unit cell.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func NewRect(x1, y1, x2, y2 int) Rect {
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}.Normalize()
}

// Normalize orders the corners so that X1<=X2 and Y1<=Y2.
func (r Rect) Normalize() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	n := r.Normalize()
	return n.X1 == n.X2 || n.Y1 == n.Y2
}

func (r Rect) Area() int {
	n := r.Normalize()
	return (n.X2 - n.X1) * (n.Y2 - n.Y1)
}

// Intersects reports whether the interiors of r and o intersect. Rectangles
// that only share an edge or a corner do not intersect.
func (r Rect) Intersects(o Rect) bool {
	a := r.Normalize()
	b := o.Normalize()
	return a.X1 < b.X2 && b.X1 < a.X2 && a.Y1 < b.Y2 && b.Y1 < a.Y2
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}
