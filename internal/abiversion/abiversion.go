// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package abiversion checks a native module's declared minimum runtime
// ABI version against the runtime's own version, using
// hashicorp/go-version for the comparison. It is adapted from the
// version-compare half of the teacher's update checker
// (internal/updater/checker.go's compareVersions), repurposed from
// "is a newer CLI release available" to "is this native module
// compatible with the running ABI".
package abiversion

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// Current is the runtime's own ABI version, bumped whenever the
// Environment/Backend contract (spec.md C7) changes incompatibly.
const Current = "1.0.0"

// Check reports whether a native module declaring minRuntimeVersion as
// its floor is compatible with running. An empty minRuntimeVersion
// always succeeds (the module makes no version claim). Returns a
// *wasmerr.LinkError with kind ABIVersionIncompatible on mismatch.
func Check(minRuntimeVersion string) error {
	if minRuntimeVersion == "" {
		return nil
	}
	want, err := version.NewVersion(minRuntimeVersion)
	if err != nil {
		return wasmerr.NewLinkError(wasmerr.ABIVersionIncompatible,
			fmt.Sprintf("malformed min_runtime_version %q: %s", minRuntimeVersion, err))
	}
	running, err := version.NewVersion(Current)
	if err != nil {
		return wasmerr.NewLinkError(wasmerr.ABIVersionIncompatible, "runtime ABI version is malformed")
	}
	if running.LessThan(want) {
		return wasmerr.NewLinkError(wasmerr.ABIVersionIncompatible,
			fmt.Sprintf("native module requires runtime ABI >= %s, running %s", minRuntimeVersion, Current))
	}
	return nil
}
