//go:build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

const (
	shaderSources = "shaders"
	shaderOutput  = "assets/shaders"
)

// stage extensions glslc understands, matching the engine's shader file names
var shaderStages = []string{"vert", "frag", "comp", "geom", "rgen", "rmiss", "rchit", "task", "mesh"}

type Build mg.Namespace

// Compiles every shaders/<name>.<stage> source into assets/shaders/<name>.<stage>.spv.
func (Build) Shaders() error {
	if err := os.MkdirAll(shaderOutput, 0o755); err != nil {
		return err
	}
	for _, stage := range shaderStages {
		sources, err := filepath.Glob(filepath.Join(shaderSources, "*."+stage))
		if err != nil {
			return err
		}
		for _, src := range sources {
			out := filepath.Join(shaderOutput, strings.TrimPrefix(src, shaderSources+string(filepath.Separator))+".spv")
			if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.3", src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Runs the unit tests of every package.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs go vet over every package.
func (Build) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
