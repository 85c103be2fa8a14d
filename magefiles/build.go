//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// buildShaders compiles the ray-march compute program's GLSL source into
// the SPIR-V cmd/vixenbench loads by convention ("<program>.<stage>.spv"
// under -shader-dir). Grounded on the teacher's buildShaders, trimmed from
// its four fixed material/skybox/UI shader pairs down to this module's one
// compute program.
func buildShaders() error {
	fmt.Println("Build shaders...")
	vkSDKPath := os.Getenv("VULKAN_SDK")
	if _, err := executeCmd(fmt.Sprintf("%s/bin/glslc", vkSDKPath),
		withArgs("-fshader-stage=compute", "assets/shaders/raymarch.comp.glsl", "-o", "shaders/raymarch.comp.spv"),
		withStream()); err != nil {
		return err
	}
	return nil
}

// Shaders compiles the ray-march compute program's GLSL source to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}
