package components

import (
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

/**
 * @brief One material slice of a mesh.
 */
type MeshPack struct {
	Name string
	/** @brief Material name, resolved through the resource pool. */
	Material string
	Geometry *vulkan.Geometry
	/**
	 * @brief Per pack descriptor buffer. Its device address is what the mesh
	 * shaders receive as push constant.
	 */
	Desc *vulkan.Buffer
	/** @brief Task shader workgroups dispatched by the indirect draw. */
	TaskCount [3]uint32
}

type Mesh struct {
	Packs []*MeshPack
}

type MeshComponent struct {
	Mesh *Mesh
}

/**
 * @brief The sky box drawn in the SkyBox subpass with its own material.
 */
type SkyBoxComponent struct {
	Mesh *Mesh
}

type CameraComponent struct {
	Camera *Camera
	Active bool
}
