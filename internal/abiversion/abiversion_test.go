// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package abiversion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheck_EmptyRequirementAlwaysSucceeds(t *testing.T) {
	require.NoError(t, Check(""))
}

func TestCheck_SucceedsWhenRequirementAtOrBelowCurrent(t *testing.T) {
	require.NoError(t, Check("1.0.0"))
	require.NoError(t, Check("0.9.0"))
}

func TestCheck_FailsWhenRequirementAboveCurrent(t *testing.T) {
	err := Check("99.0.0")
	require.Error(t, err)
}

func TestCheck_FailsOnMalformedRequirement(t *testing.T) {
	err := Check("not-a-version")
	require.Error(t, err)
}
