package sandbox

import (
	"errors"

	"github.com/aarzilli/golua/lua"
)

// PackagePath returns the VM's current module search path. Fields are read
// raw, so a script cannot intercept the lookup.
func PackagePath(L *lua.State) (string, error) {
	L.PushString("package")
	L.RawGet(lua.LUA_GLOBALSINDEX)
	defer L.Pop(1)
	if !L.IsTable(-1) {
		return "", errors.New("package library is not loaded")
	}

	L.PushString("path")
	L.RawGet(-2)
	defer L.Pop(1)
	if L.Type(-1) != lua.LUA_TSTRING {
		return "", errors.New("package.path must be a string")
	}
	return L.ToString(-1), nil
}
