// Package shim materializes the mocha-compatibility module described in
// spec.md §4.5 and loads the harness script that realizes the host test
// framework capability set (spec.md §6) into the shared JS runtime.
package shim

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

//go:embed assets/harness.js
var harnessSource string

//go:embed assets/shim.js
var shimSource string

// ModuleName is the specifier test files use to reach the
// mocha-compatibility layer: require("mocha"). It is registered as a
// native module rather than resolved from a file path, since prepared
// test files live next to their originals scattered across the
// filesystem and have no common relative path back to the shim.
const ModuleName = "mocha"

// Registry owns the on-disk location of the materialized shim module,
// kept around as an inspectable artifact (surfaced in startup logs) even
// though require("mocha") resolves through RegisterModule, not this path.
type Registry struct {
	path string
}

// NewRegistry writes the shim module into a stable per-runner
// subdirectory of the system temp directory and returns a Registry
// pointing at it. The path is immutable configuration for the rest of
// the process's lifetime.
func NewRegistry(prefix string) (*Registry, error) {
	dir := filepath.Join(os.TempDir(), "."+prefix+"-shim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shim directory: %w", err)
	}
	path := filepath.Join(dir, "index.js")
	if err := os.WriteFile(path, []byte(shimSource), 0o644); err != nil {
		return nil, fmt.Errorf("write shim module: %w", err)
	}
	return &Registry{path: path}, nil
}

// Path returns the absolute path of the materialized shim module.
func (r *Registry) Path() string {
	return r.path
}

// LoadHarness evaluates the embedded harness script into vm, installing
// globalThis.__harness. Must run once on the JS runtime's loop goroutine
// before any request is processed.
func LoadHarness(vm *goja.Runtime) error {
	_, err := vm.RunScript("harness.js", harnessSource)
	return err
}

// RegisterModule teaches registry how to resolve require("mocha") to the
// embedded compatibility shim, evaluated as an ordinary CommonJS module
// (module/exports, no further requires of its own).
func RegisterModule(registry *require.Registry) {
	registry.RegisterNativeModule(ModuleName, func(vm *goja.Runtime, module *goja.Object) {
		wrapperSrc := "(function(module, exports) {\n" + shimSource + "\n})"
		wrapperVal, err := vm.RunString(wrapperSrc)
		if err != nil {
			panic(vm.ToValue(fmt.Sprintf("mocha shim: compile failed: %v", err)))
		}
		wrapperFn, ok := goja.AssertFunction(wrapperVal)
		if !ok {
			panic(vm.ToValue("mocha shim: wrapper is not callable"))
		}
		if _, err := wrapperFn(goja.Undefined(), module, module.Get("exports")); err != nil {
			panic(err)
		}
	})
}
