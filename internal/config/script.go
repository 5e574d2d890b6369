package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// scriptTimeout bounds evaluation of a host-supplied config script.
const scriptTimeout = 250 * time.Millisecond

// ErrGlobalMissing is returned when the script never assigns the global.
var ErrGlobalMissing = errors.New("config: script did not define the configuration global")

// ReadScript evaluates a host script such as
//
//	window.foodPantryConfig = {"datasetsBaseUrl": "..."};
//	var foodPantryConfig = {...};
//
// and reads the object assigned to global. The script runs in an isolated
// runtime where window aliases the global object.
func ReadScript(src, global string) (Config, error) {
	if global == "" {
		global = DefaultGlobal
	}
	vm := goja.New()
	if err := vm.Set("window", vm.GlobalObject()); err != nil {
		return Normalize(Config{}), fmt.Errorf("config: prepare runtime: %w", err)
	}
	timer := time.AfterFunc(scriptTimeout, func() { vm.Interrupt("config script timed out") })
	defer timer.Stop()

	if _, err := vm.RunString(src); err != nil {
		return Normalize(Config{}), fmt.Errorf("config: evaluate script: %w", err)
	}
	value := vm.Get(global)
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return Normalize(Config{}), ErrGlobalMissing
	}
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return Normalize(Config{}), errors.New("config: JSON.stringify unavailable")
	}
	encoded, err := stringify(goja.Undefined(), value)
	if err != nil {
		return Normalize(Config{}), fmt.Errorf("config: encode global: %w", err)
	}
	return Read([]byte(encoded.String()))
}
