//go:build mage
// +build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Check

const pkgs = "./internal/..."

// Check runs the formatting check, vet and the tests.
func Check() error {
	mg.SerialDeps(Fmt, Vet, Test)
	fmt.Println("All checks passed")
	return nil
}

// Fmt fails if any file needs gofmt.
func Fmt() error {
	out, err := sh.Output("gofmt", "-l", "internal", "magefile.go")
	if err != nil {
		return err
	}
	if out = strings.TrimSpace(out); out != "" {
		return fmt.Errorf("files need gofmt:\n%s", out)
	}
	return nil
}

func Vet() error {
	return sh.RunV("go", "vet", pkgs)
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", pkgs)
}

// Bench runs the event generator and minimizer benchmarks.
func Bench() error {
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem",
		"./internal/eventgen/...", "./internal/mcmin/...")
}

// Coverage writes coverage.out and prints the per-function summary.
func Coverage() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", pkgs); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Clean removes generated artefacts.
func Clean() error {
	for _, f := range []string{"coverage.out", "mcopt.db"} {
		if err := sh.Rm(f); err != nil {
			return err
		}
	}
	return nil
}
