//go:build tools
// +build tools

// Package tools pins the code generators used by go:generate so that
// go.mod and go.sum track them. Nothing here is linked into a binary.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
