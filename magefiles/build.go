//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds surfacetool into ./bin.
func (Build) Tool() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/surfacetool", "./cmd/surfacetool"), withStream())
	return err
}
