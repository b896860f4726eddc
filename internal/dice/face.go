package dice

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Face is an outward normal in the die's local frame and its pip value.
type Face struct {
	Normal mgl64.Vec3
	Value  int
}

// Faces is the fixed enumeration order used for tie-breaking. Opposite
// faces sum to 7.
var Faces = [6]Face{
	{Normal: mgl64.Vec3{0, 0, 1}, Value: 3},
	{Normal: mgl64.Vec3{0, 0, -1}, Value: 4},
	{Normal: mgl64.Vec3{0, 1, 0}, Value: 5},
	{Normal: mgl64.Vec3{0, -1, 0}, Value: 2},
	{Normal: mgl64.Vec3{1, 0, 0}, Value: 6},
	{Normal: mgl64.Vec3{-1, 0, 0}, Value: 1},
}

var up = mgl64.Vec3{0, 1, 0}

// ResolveFace returns the value of the face whose world-space normal is
// closest to straight up. Exact ties go to the earlier face in Faces.
func ResolveFace(orientation mgl64.Quat) int {
	best := math.Inf(-1)
	value := Faces[0].Value
	for _, f := range Faces {
		dot := orientation.Rotate(f.Normal).Dot(up)
		if dot > best {
			best = dot
			value = f.Value
		}
	}
	return value
}

// ValueOf returns the value assigned to a local axis direction, or 0 when
// the direction is not a face normal.
func ValueOf(normal mgl64.Vec3) int {
	for _, f := range Faces {
		if f.Normal == normal {
			return f.Value
		}
	}
	return 0
}
