package render

import (
	"testing"

	"foodpantry/testutil"
)

// TestNoServerOnlyImports keeps the package buildable into the browser widget.
func TestNoServerOnlyImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ServerOnlyImport, "render is compiled into the wasm widget")
}
