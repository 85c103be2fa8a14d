//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Bench builds the ray-march shader and runs the benchmark driver against
// it. Grounded on the teacher's Run.Engine, retargeted from `go run
// main.go` (the teacher's sample game) to cmd/vixenbench, this module's
// only runnable entry point.
func (Run) Bench() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run vixenbench...")
	if _, err := executeCmd("go", withArgs("run", "./cmd/vixenbench"), withStream()); err != nil {
		return err
	}
	return nil
}
