package renderer

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

/**
 * @brief Where compiled shader stages come from.
 */
type ShaderSource interface {
	Load(name string, stage vk.ShaderStageFlagBits) ([]byte, error)
}

// DirShaderSource reads <Dir>/<name>.<stage>.spv files.
type DirShaderSource struct {
	Dir string
}

func (s DirShaderSource) Load(name string, stage vk.ShaderStageFlagBits) ([]byte, error) {
	return vulkan.ReadShaderCode(s.Dir, name, vulkan.ShaderStageType(stage))
}

// spirvMagic opens every SPIR-V module.
const spirvMagic uint32 = 0x07230203

/**
 * @brief Falls back to an empty SPIR-V module when a shader file is missing,
 * so pass layouts can be built without compiled shaders.
 */
type FallbackShaderSource struct {
	Source ShaderSource
}

func (s FallbackShaderSource) Load(name string, stage vk.ShaderStageFlagBits) ([]byte, error) {
	if s.Source != nil {
		code, err := s.Source.Load(name, stage)
		if err == nil || !errors.Is(err, vulkan.ErrShaderNotFound) {
			return code, err
		}
	}
	// magic, version 1.5, generator, bound, schema
	header := make([]byte, 0, 20)
	for _, word := range []uint32{spirvMagic, 0x00010500, 0, 1, 0} {
		header = binary.LittleEndian.AppendUint32(header, word)
	}
	return header, nil
}
