package vulkan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

var ErrShaderNotFound = errors.New("shader not found")

// ShaderFileName builds the file name of a compiled stage: <name>.<type>.spv
func ShaderFileName(name, typeStr string) string {
	return fmt.Sprintf("%s.%s.spv", name, typeStr)
}

// ShaderStageType maps a stage to the type string used in shader file names.
func ShaderStageType(stage vk.ShaderStageFlagBits) string {
	switch stage {
	case vk.ShaderStageVertexBit:
		return "vert"
	case vk.ShaderStageFragmentBit:
		return "frag"
	case vk.ShaderStageComputeBit:
		return "comp"
	case vk.ShaderStageGeometryBit:
		return "geom"
	case ShaderStageRaygen:
		return "rgen"
	case ShaderStageMiss:
		return "rmiss"
	case ShaderStageClosestHit:
		return "rchit"
	case ShaderStageTask:
		return "task"
	case ShaderStageMesh:
		return "mesh"
	default:
		return "spv"
	}
}

// VK_SHADER_STAGE_*_KHR ray tracing stages
const (
	ShaderStageRaygen     vk.ShaderStageFlagBits = 0x100
	ShaderStageMiss       vk.ShaderStageFlagBits = 0x800
	ShaderStageClosestHit vk.ShaderStageFlagBits = 0x400
)

// VK_SHADER_STAGE_TASK_BIT_EXT and VK_SHADER_STAGE_MESH_BIT_EXT
const (
	ShaderStageTask vk.ShaderStageFlagBits = 0x40
	ShaderStageMesh vk.ShaderStageFlagBits = 0x80
)

// ReadShaderCode reads dir/<name>.<type>.spv.
func ReadShaderCode(dir, name, typeStr string) ([]byte, error) {
	fileName := filepath.Join(dir, ShaderFileName(name, typeStr))
	code, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrShaderNotFound, "%s", fileName)
		}
		core.LogError("unable to read shader module: %s", fileName)
		return nil, errors.Wrapf(err, "read %s", fileName)
	}
	return code, nil
}

// ShaderStageFromType is the inverse of ShaderStageType.
func ShaderStageFromType(typeStr string) (vk.ShaderStageFlagBits, bool) {
	for _, stage := range []vk.ShaderStageFlagBits{
		vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit, vk.ShaderStageComputeBit, vk.ShaderStageGeometryBit,
		ShaderStageRaygen, ShaderStageMiss, ShaderStageClosestHit, ShaderStageTask, ShaderStageMesh,
	} {
		if ShaderStageType(stage) == typeStr {
			return stage, true
		}
	}
	return 0, false
}
