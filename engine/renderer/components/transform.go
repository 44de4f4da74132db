package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief The placement of an entity. Rotation holds Euler angles in radians.
 */
type TransformComponent struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

func NewTransformComponent() *TransformComponent {
	return &TransformComponent{Scale: mgl32.Vec3{1, 1, 1}}
}

// RotateMatrix returns the rotation part of the model matrix.
func (t *TransformComponent) RotateMatrix() mgl32.Mat4 {
	return mgl32.AnglesToQuat(t.Rotation.X(), t.Rotation.Y(), t.Rotation.Z(), mgl32.XYZ).Mat4()
}

// ModelMatrix is translation * rotation * scale.
func (t *TransformComponent) ModelMatrix() mgl32.Mat4 {
	translation := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translation.Mul4(t.RotateMatrix()).Mul4(scale)
}

// RowMajor3x4 returns the top three rows of the model matrix, the layout of
// acceleration structure instance transforms.
func (t *TransformComponent) RowMajor3x4() [12]float32 {
	m := t.ModelMatrix()
	var out [12]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row*4+col] = m.At(row, col)
		}
	}
	return out
}
