package assets

import (
	"bufio"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/spices/engine/core"
)

/**
 * @brief A material file: its name and the shader of each stage.
 *
 *	name = BasePassRenderer.Mesh.Default
 *	task = BasePassRenderer.Mesh
 *	mesh = BasePassRenderer.Mesh
 *	frag = BasePassRenderer.Mesh
 */
type MaterialConfig struct {
	Name string
	/** @brief Shader name by stage type (vert, frag, comp, rgen, ...). */
	Stages map[string]string
}

var knownStages = map[string]bool{
	"vert": true, "frag": true, "geom": true, "comp": true,
	"task": true, "mesh": true, "rgen": true, "rmiss": true, "rchit": true,
}

// LoadMaterialConfig reads a material file.
func LoadMaterialConfig(path string) (*MaterialConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "material %s", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	materialConfig := &MaterialConfig{Stages: make(map[string]string)}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		// Split key-value pairs by the first "=" sign
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			core.LogWarn("Skipping invalid line: %s", line)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch {
		case key == "name":
			materialConfig.Name = value
		case knownStages[key]:
			materialConfig.Stages[key] = value
		default:
			core.LogError("Unknown key '%s' found in file. Skipping...", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "material %s", path)
	}
	if err := validateMaterial(materialConfig); err != nil {
		return nil, errors.Wrapf(err, "material %s", path)
	}
	return materialConfig, nil
}

func validateMaterial(material *MaterialConfig) error {
	if material.Name == "" {
		return errors.New("material name is required")
	}
	if len(material.Stages) == 0 {
		return errors.New("at least one shader stage is required")
	}
	for stage, shader := range material.Stages {
		if shader == "" {
			return errors.Newf("stage %s has no shader", stage)
		}
	}
	return nil
}
