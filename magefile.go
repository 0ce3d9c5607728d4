//go:build mage

// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName    = "pvnav"
	modulePath    = "github.com/penny-vault/pv-nav"
	commonPackage = modulePath + "/common"

	// redis used by TestRedis when PVNAV_TEST_REDIS_URL is not set
	defaultTestRedis = "redis://localhost:6379/15"
)

var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// version metadata stamped into common
func ldflags() string {
	hash, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return strings.Join([]string{
		"-X", commonPackage + ".commitHash=" + hash,
		"-X", commonPackage + ".buildDate=" + time.Now().Format("2006-01-02T15:04:05Z0700"),
	}, " ")
}

// Build the pvnav binary
func Build() error {
	fmt.Println("Building", binaryName)
	return sh.RunV(goexe, "build", "-o", binaryName, "-ldflags", ldflags(), ".")
}

// Install pvnav into GOBIN
func Install() error {
	return sh.RunV(goexe, "install", "-ldflags", ldflags(), ".")
}

// Remove build and coverage output
func Clean() error {
	for _, fn := range []string{binaryName, "coverage.out"} {
		if err := sh.Rm(fn); err != nil {
			return err
		}
	}
	return nil
}

// Format, vet and race-test everything
func Check() {
	mg.SerialDeps(Fmt, Vet, TestRace)
}

func ginkgo(env map[string]string, extra ...string) error {
	args := []string{"run", "github.com/onsi/ginkgo/v2/ginkgo", "-r", "--randomize-all", "--fail-on-pending"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, extra...)
	return sh.RunWith(env, goexe, args...)
}

// Run the ginkgo suites
func Test() error {
	return ginkgo(nil)
}

// Run the ginkgo suites with the race detector
func TestRace() error {
	return ginkgo(nil, "--race")
}

// Run the data suite including the redis partition store
func TestRedis() error {
	url := os.Getenv("PVNAV_TEST_REDIS_URL")
	if url == "" {
		url = defaultTestRedis
	}
	fmt.Println("Redis partitions against", url)
	return ginkgo(map[string]string{"PVNAV_TEST_REDIS_URL": url}, "--focus", "redis partitions", "./data")
}

// Write coverage.out and open it in a browser
func Cover() error {
	const cover = "coverage.out"
	if err := ginkgo(nil, "--cover", "--covermode=count", "--coverprofile="+cover); err != nil {
		return err
	}
	return sh.Run(goexe, "tool", "cover", "-html="+cover)
}

// Fail if any source file is not gofmt'ed
func Fmt() error {
	files, err := sourceFiles()
	if err != nil {
		return err
	}
	out, err := sh.Output("gofmt", append([]string{"-l"}, files...)...)
	if err != nil {
		return err
	}
	// gofmt -l exits zero even when it lists files
	if out != "" {
		fmt.Println("not gofmt'ed:")
		fmt.Println(out)
		return errors.New("improperly formatted go files")
	}
	return nil
}

// Run go vet
func Vet() error {
	if err := sh.Run(goexe, "vet", "./..."); err != nil {
		return fmt.Errorf("go vet: %w", err)
	}
	return nil
}

// sourceFiles lists the .go files of every package in the module; go list
// skips directories starting with an underscore
func sourceFiles() ([]string, error) {
	out, err := sh.Output(goexe, "list", "-f", "{{.Dir}}", "./...")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, dir := range strings.Split(out, "\n") {
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	files = append(files, "magefile.go")
	return files, nil
}
