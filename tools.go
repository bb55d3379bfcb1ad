//go:build tools

package tools

// Pins the mock generator version in go.mod. Run: go run github.com/vektra/mockery/v2
import (
	_ "github.com/vektra/mockery/v2"
)
