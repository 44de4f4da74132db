package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	/** @brief Directional lights read from the world per frame. */
	MaxDirectionalLights = 10
	/** @brief Capacity of the directional light storage buffer. */
	DirectionalLightBufferMaxNum = 100
	/** @brief Capacity of the point light storage buffer. */
	PointLightBufferMaxNum = 10000
)

/**
 * @brief Written after the last light of a light buffer. Shaders stop
 * iterating when they read it.
 */
const LightSentinelIntensity float32 = -1000.0

/**
 * @brief A directional light as laid out in a storage buffer (std430).
 */
type DirectionalLight struct {
	Rotation  [3]float32
	_         float32
	Color     [3]float32
	Intensity float32
}

/**
 * @brief A point light as laid out in a storage buffer (std430).
 */
type PointLight struct {
	Position  [3]float32
	_         float32
	Color     [3]float32
	Intensity float32
	Constant  float32
	Linear    float32
	Quadratic float32
	_         float32
}

type DirectionalLightComponent struct {
	Color     mgl32.Vec3
	Intensity float32
}

type PointLightComponent struct {
	Color     mgl32.Vec3
	Intensity float32
	Constant  float32
	Linear    float32
	Quadratic float32
}

// Light combines the component with the rotation of its transform.
func (c *DirectionalLightComponent) Light(t *TransformComponent) DirectionalLight {
	return DirectionalLight{
		Rotation:  t.Rotation,
		Color:     c.Color,
		Intensity: c.Intensity,
	}
}

// Light combines the component with the position of its transform.
func (c *PointLightComponent) Light(t *TransformComponent) PointLight {
	return PointLight{
		Position:  t.Position,
		Color:     c.Color,
		Intensity: c.Intensity,
		Constant:  c.Constant,
		Linear:    c.Linear,
		Quadratic: c.Quadratic,
	}
}
