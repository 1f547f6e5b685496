// Package integration is a helper for running integration tests.
package integration

import (
	"os"
	"testing"
)

// skip is true unless REGISTRY_INTEGRATION is set, so integration tests are
// opt-in.
var skip = os.Getenv("REGISTRY_INTEGRATION") == ""

// Skip will skip the current test or benchmark unless REGISTRY_INTEGRATION is
// set in the environment.
//
// This should be used as an annotation at the top of the function, like
// (*testing.T).Parallel().
//
//	func TestThatTouchesNetwork(t *testing.T) {
//		t.Parallel()
//		integration.Skip(t)
//		// ...
//	}
func Skip(t testing.TB) {
	if skip {
		t.Skip("skipping integration test")
	}
}
