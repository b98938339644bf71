// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import "github.com/fatih/color"

var (
	errorColor = color.New(color.FgRed, color.Bold).SprintFunc()
	trapColor  = color.New(color.FgYellow, color.Bold).SprintFunc()
	okColor    = color.New(color.FgGreen).SprintFunc()
	headColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
)
