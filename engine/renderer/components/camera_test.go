package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCameraDefaults(t *testing.T) {
	c := NewCamera()
	if !c.Forward().ApproxEqual(mgl32.Vec3{0, 0, -1}) {
		t.Fatalf("forward = %v", c.Forward())
	}
	if !c.Right().ApproxEqual(mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("right = %v", c.Right())
	}

	c.MoveForward(2)
	if !c.GetPosition().ApproxEqual(mgl32.Vec3{0, 0, -2}) {
		t.Fatalf("position after moving forward = %v", c.GetPosition())
	}
	if !c.GetView().Mul4x1(mgl32.Vec4{0, 0, -2, 1}).ApproxEqual(mgl32.Vec4{0, 0, 0, 1}) {
		t.Fatalf("view does not map the camera position to the origin")
	}
}

func TestCameraPitchClamp(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	if limit := mgl32.DegToRad(89); c.EulerRotation.X() != limit {
		t.Fatalf("pitch = %f, want %f", c.EulerRotation.X(), limit)
	}
	c.Pitch(-20)
	if limit := -mgl32.DegToRad(89); c.EulerRotation.X() != limit {
		t.Fatalf("pitch = %f, want %f", c.EulerRotation.X(), limit)
	}
}

func TestCameraStableFrames(t *testing.T) {
	c := NewCamera()
	c.Tick()
	c.Tick()
	c.Tick()
	if c.StableFrames != 2 {
		t.Fatalf("stable frames = %d, want 2", c.StableFrames)
	}
	c.Yaw(0.1)
	c.Tick()
	if c.StableFrames != 0 {
		t.Fatalf("stable frames after moving = %d, want 0", c.StableFrames)
	}
}

func TestTransformModelMatrix(t *testing.T) {
	tr := NewTransformComponent()
	tr.Position = mgl32.Vec3{1, 2, 3}
	tr.Scale = mgl32.Vec3{2, 2, 2}
	p := tr.ModelMatrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	if !p.ApproxEqual(mgl32.Vec4{3, 2, 3, 1}) {
		t.Fatalf("model * (1,0,0) = %v", p)
	}
	rows := tr.RowMajor3x4()
	if rows[3] != 1 || rows[7] != 2 || rows[11] != 3 {
		t.Fatalf("translation column = %v", rows)
	}
}
