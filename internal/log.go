package internal

import (
	"fmt"
	"log"
	"os"
)

// Prefix creates a consistent log prefix for multi-source runs.
//
// i and n are the zero-based ordinal and expected count.
func Prefix(i, n int, name string) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, TruncateRightWithSuffix(name, 30, "..."))
}

// NewLogger returns a stderr logger using Prefix(i, n, name).
func NewLogger(i, n int, name string) *log.Logger {
	return log.New(os.Stderr, Prefix(i, n, name), 0)
}
