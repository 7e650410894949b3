//go:build mage

/*
mfctext
Copyright (C) 2023, 2024 Callan Barrett

This file is part of mfctext.

mfctext is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mfctext is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mfctext.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/joho/godotenv/autoload"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var (
	cwd, _         = os.Getwd()
	binDir         = filepath.Join(cwd, "_bin")
	binReleasesDir = filepath.Join(binDir, "releases")
	upxBin         = os.Getenv("UPX_BIN")
	appPath        = filepath.Join(cwd, "cmd", "mfctext")
)

func binName() string {
	if runtime.GOOS == "windows" {
		return "mfctext.exe"
	}
	return "mfctext"
}

func platformDir() string {
	return runtime.GOOS + "_" + runtime.GOARCH
}

func Clean() {
	_ = sh.Rm(binDir)
}

// Build builds mfctext for the current platform. libnfc is linked when
// cgo is available, otherwise the libnfc reader is stubbed out.
func Build() error {
	out := filepath.Join(binDir, platformDir(), binName())

	env := map[string]string{}
	if runtime.GOOS == "linux" {
		env["CGO_ENABLED"] = "1"
		env["CGO_LDFLAGS"] = "-lnfc -lusb"
	}

	fmt.Println("Building", out)
	return sh.RunWithV(env, "go", "build", "-o", out, appPath)
}

// NoCgo builds without libnfc support.
func NoCgo() error {
	out := filepath.Join(binDir, platformDir()+"_nocgo", binName())
	env := map[string]string{
		"CGO_ENABLED": "0",
	}
	return sh.RunWithV(env, "go", "build", "-o", out, appPath)
}

// Release builds and compresses a release binary for the current platform.
func Release() error {
	mg.Deps(Build)

	_ = os.MkdirAll(binReleasesDir, 0755)
	releaseBin := filepath.Join(binReleasesDir, binName())
	err := sh.Copy(releaseBin, filepath.Join(binDir, platformDir(), binName()))
	if err != nil {
		return fmt.Errorf("copying binary: %w", err)
	}

	if upxBin == "" {
		fmt.Println("UPX_BIN not set, skipping compression")
		return nil
	}

	if runtime.GOOS != "windows" {
		err := os.Chmod(releaseBin, 0755)
		if err != nil {
			return fmt.Errorf("chmod release bin: %w", err)
		}
	}

	return sh.RunV(upxBin, "-9", releaseBin)
}

func Test() error {
	return sh.RunV("go", "test", "./...")
}

func Coverage() {
	_ = sh.RunV("go", "test", "-coverprofile", "coverage.out", "./...")
	_ = sh.RunV("go", "tool", "cover", "-html", "coverage.out")
	_ = sh.Rm("coverage.out")
}
