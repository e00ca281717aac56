package helpers

import (
	"strings"
)

// LastSplitPart splits target by separate and returns the final part
func LastSplitPart(target string, separate string) string {
	parts := strings.Split(target, separate)
	return parts[len(parts)-1]
}
