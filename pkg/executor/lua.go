package executor

import (
	"context"
	"fmt"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// LuaRuntime evaluates every step in one persistent, sandboxed Lua state.
// Only the base, table, string, math and coroutine libraries are available;
// file and module loading are removed.
type LuaRuntime struct {
	L      *lua.LState
	stdout io.Writer
}

// NewLuaRuntime creates the sandboxed state.
func NewLuaRuntime() (*LuaRuntime, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open lua library %s: %w", lib.name, err)
		}
	}

	for _, name := range []string{"dofile", "loadfile", "require", "module", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	r := &LuaRuntime{L: L, stdout: io.Discard}

	L.SetGlobal("print", L.NewFunction(r.print))
	ioTable := L.NewTable()
	L.SetField(ioTable, "write", L.NewFunction(r.write))
	L.SetGlobal("io", ioTable)

	return r, nil
}

func (r *LuaRuntime) Language() string { return "lua" }
func (r *LuaRuntime) Ext() string      { return ".lua" }
func (r *LuaRuntime) Comment() string  { return "--" }

// Run evaluates code in the shared state. Lua errors are returned so the
// executor can render them into stderr.
func (r *LuaRuntime) Run(ctx context.Context, _ string, code string, stdout, _ io.Writer) error {
	r.stdout = stdout
	defer func() { r.stdout = io.Discard }()

	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	if err := r.L.DoString(code); err != nil {
		return err
	}
	return nil
}

// Close releases the Lua state.
func (r *LuaRuntime) Close() error {
	r.L.Close()
	return nil
}

func (r *LuaRuntime) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(r.stdout, strings.Join(parts, "\t"))
	return 0
}

func (r *LuaRuntime) write(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		fmt.Fprint(r.stdout, L.ToStringMeta(L.Get(i)).String())
	}
	return 0
}
