package vmath

import "math"

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X float64
	Y float64
}

var Zero = Vec2{}

func New(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

func (v Vec2) LengthSq() float64 { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Length() float64   { return math.Sqrt(v.LengthSq()) }

func (v Vec2) DistanceSq(o Vec2) float64 { return v.Sub(o).LengthSq() }
func (v Vec2) Distance(o Vec2) float64   { return math.Sqrt(v.DistanceSq(o)) }

// Normalized returns the unit vector, or Zero for a zero-length input.
func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l == 0 {
		return Zero
	}
	return v.Scale(1 / l)
}
