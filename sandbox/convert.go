package sandbox

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aarzilli/golua/lua"
)

// goValue converts the value at idx into one encoding/json can render.
// Integral numbers become int64 and other numbers float64, except NaN and the
// infinities, which become the strings "nan", "inf" and "-inf". Tables with
// keys 1..n become slices, other tables become maps. Functions, threads,
// userdata and repeated tables become nil.
//
// Only stack operations that cannot raise are used, so goValue is safe
// outside a protected call.
func goValue(L *lua.State, idx int) any {
	if idx < 0 {
		idx = L.GetTop() + idx + 1
	}
	return toGoValue(L, idx, make(map[uintptr]bool))
}

func toGoValue(L *lua.State, idx int, visited map[uintptr]bool) any {
	switch L.Type(idx) {
	case lua.LUA_TBOOLEAN:
		return L.ToBoolean(idx)
	case lua.LUA_TNUMBER:
		return goNumber(L.ToNumber(idx))
	case lua.LUA_TSTRING:
		return L.ToString(idx)
	case lua.LUA_TTABLE:
		p := L.ToPointer(idx)
		if visited[p] || !L.CheckStack(3) {
			return nil
		}
		visited[p] = true
		return tableToGo(L, idx, visited)
	default:
		return nil
	}
}

func goNumber(f float64) any {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64:
		return int64(f)
	default:
		return f
	}
}

// numberKey renders a numeric table key the way it is shown in maps.
func numberKey(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

func tableToGo(L *lua.State, idx int, visited map[uintptr]bool) any {
	count, maxN := 0, 0
	isArray := true

	L.PushNil()
	for L.Next(idx) != 0 {
		count++
		if L.Type(-2) == lua.LUA_TNUMBER {
			f := L.ToNumber(-2)
			if n := int(f); float64(n) == f && n > 0 {
				if n > maxN {
					maxN = n
				}
				L.Pop(1)
				continue
			}
		}
		isArray = false
		L.Pop(1)
	}

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			L.RawGeti(idx, i)
			arr[i-1] = toGoValue(L, L.GetTop(), visited)
			L.Pop(1)
		}
		return arr
	}

	m := make(map[string]any, count)
	L.PushNil()
	for L.Next(idx) != 0 {
		var key string
		switch L.Type(-2) {
		case lua.LUA_TSTRING:
			key = L.ToString(-2)
		case lua.LUA_TNUMBER:
			key = numberKey(L.ToNumber(-2))
		case lua.LUA_TBOOLEAN:
			key = strconv.FormatBool(L.ToBoolean(-2))
		default:
			key = fmt.Sprintf("%s: 0x%x", L.LTypename(-2), L.ToPointer(-2))
		}
		m[key] = toGoValue(L, L.GetTop(), visited)
		L.Pop(1)
	}
	return m
}

// errorMessage renders the error object at idx without invoking metamethods.
func errorMessage(L *lua.State, idx int) string {
	switch L.Type(idx) {
	case lua.LUA_TSTRING:
		return L.ToString(idx)
	case lua.LUA_TNUMBER:
		return numberKey(L.ToNumber(idx))
	case lua.LUA_TNIL, lua.LUA_TNONE:
		return "(error object is nil)"
	default:
		return fmt.Sprintf("(error object is a %s value)", L.LTypename(idx))
	}
}
