//go:build mage

// Package main provides build targets for aidledger using Mage.
//
// Usage:
//
//	mage generate      Regenerate templ components
//	mage build         Compile the aidledger binary to bin/
//	mage test          Run all tests
//	mage lint          Run golangci-lint
//	mage migrateCheck  Verify the built-in migration sequence round-trips
//	mage clean         Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "aidledger"
	binaryDir  = "bin"
	cmdDir     = "./cmd/app"
)

// Generate runs templ over internal/ui.
func Generate() error {
	return sh.RunV("templ", "generate", "-path", "internal/ui")
}

// Build compiles the aidledger binary to bin/.
func Build() error {
	mg.Deps(Generate)
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// MigrateCheck replays every step up and down against an empty schema and
// fails when any down list does not restore the state before its up list.
func MigrateCheck() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binaryDir, binaryName), "migrate", "check")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV("go", "clean")
}
