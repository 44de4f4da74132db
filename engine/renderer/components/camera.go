package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief Represents a camera that can be used for
 * a variety of things, especially rendering. The world
 * owns it through a CameraComponent.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation mgl32.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/**
	 * @brief The view matrix of this camera.
	 * NOTE: IMPORTANT: Do not get this directly, use GetView() instead
	 * so the view matrix is recalculated when needed.
	 */
	ViewMatrix mgl32.Mat4
	/** @brief Vertical field of view, in radians. */
	FOV         float32
	NearClip    float32
	FarClip     float32
	AspectRatio float32
	/** @brief Frames since the camera last moved. Accumulation passes restart at 0. */
	StableFrames uint32

	moved bool
}

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.IsDirty = false
	c.ViewMatrix = mgl32.Ident4()
	c.FOV = mgl32.DegToRad(45.0)
	c.NearClip = 0.1
	c.FarClip = 1000.0
	c.AspectRatio = 1280 / 720.0
	c.StableFrames = 0
	c.moved = true
}

func (c *Camera) GetPosition() mgl32.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.touch()
}

func (c *Camera) GetEulerRotation() mgl32.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.touch()
}

// SetAspectRatio is called on slate resize.
func (c *Camera) SetAspectRatio(width, height uint32) {
	if height == 0 {
		return
	}
	c.AspectRatio = float32(width) / float32(height)
	c.moved = true
}

// Transform is the camera to world matrix.
func (c *Camera) Transform() mgl32.Mat4 {
	rotation := mgl32.AnglesToQuat(c.EulerRotation.X(), c.EulerRotation.Y(), c.EulerRotation.Z(), mgl32.XYZ).Mat4()
	translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())
	return translation.Mul4(rotation)
}

func (c *Camera) GetView() mgl32.Mat4 {
	if c.IsDirty {
		c.ViewMatrix = c.Transform().Inv()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

// Projection is a right handed perspective projection with clip space y pointing up.
func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(c.FOV, c.AspectRatio, c.NearClip, c.FarClip)
}

// Tick advances the stable frame counter once per frame.
func (c *Camera) Tick() {
	if c.moved {
		c.StableFrames = 0
		c.moved = false
		return
	}
	c.StableFrames++
}

func (c *Camera) touch() {
	c.IsDirty = true
	c.moved = true
}

func (c *Camera) Forward() mgl32.Vec3 {
	view := c.GetView()
	return view.Row(2).Vec3().Mul(-1).Normalize()
}

func (c *Camera) Backward() mgl32.Vec3 {
	return c.Forward().Mul(-1)
}

func (c *Camera) Left() mgl32.Vec3 {
	return c.Right().Mul(-1)
}

func (c *Camera) Right() mgl32.Vec3 {
	view := c.GetView()
	return view.Row(0).Vec3().Normalize()
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.Mul(amount))
	c.touch()
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(mgl32.Vec3{0, 1, 0}, amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(mgl32.Vec3{0, -1, 0}, amount)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.touch()
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := mgl32.DegToRad(89.0)
	c.EulerRotation[0] = mgl32.Clamp(c.EulerRotation[0], -limit, limit)

	c.touch()
}
