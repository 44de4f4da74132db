//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and prints the renderer layout built on the headless device.
func (Run) Describe() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Describe renderers...")
	if _, err := executeCmd("go", withArgs("run", ".", "describe", "-config", "spices.toml"), withStream()); err != nil {
		return err
	}
	return nil
}
