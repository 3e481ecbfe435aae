//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

// Runs the test suite with the race detector.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Runs go vet.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Runs vet and tests, then builds the tool.
func All() {
	mg.SerialDeps(Vet, Test, Build.Tool)
}
