package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "session")
	e, err := New(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestExecutor_PrintCapturesStdout(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`print("hello")`, 1))
	stdout, stderr, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.Empty(t, stderr)
}

func TestExecutor_StatePersistsAcrossSteps(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	require.NoError(t, e.WriteStep(`x = 41`, 1))
	_, stderr, err := e.ExecuteStep(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, stderr)

	require.NoError(t, e.WriteStep(`print(x + 1)`, 2))
	stdout, stderr, err := e.ExecuteStep(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, "42\n", stdout)
}

func TestExecutor_CodeErrorGoesToStderr(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`print("before")
error("boom")`, 1))
	stdout, stderr, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "before\n", stdout)
	assert.Contains(t, stderr, "boom")
}

func TestExecutor_SyntaxErrorGoesToStderr(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`print(`, 1))
	_, stderr, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.NotEmpty(t, stderr)
}

func TestExecutor_MissingStepIsStructural(t *testing.T) {
	e := newTestExecutor(t)

	_, _, err := e.ExecuteStep(context.Background(), 7)
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestExecutor_Sandbox(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`print(dofile == nil, require == nil, loadfile == nil, os == nil, package == nil)`, 1))
	stdout, stderr, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, "true\ttrue\ttrue\ttrue\ttrue\n", stdout)
}

func TestExecutor_SandboxCannotLoadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outside.lua"), []byte(`print("loaded from disk")`), 0o644))

	e := newTestExecutor(t)
	code := fmt.Sprintf("package.path = %q\nlocal f = package.loaders[2](\"outside\")\nf()", filepath.Join(dir, "?.lua"))
	require.NoError(t, e.WriteStep(code, 1))
	stdout, stderr, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.NotContains(t, stdout, "loaded from disk")
	assert.NotEmpty(t, stderr)
}

func TestExecutor_IOWrite(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`io.write("a", 1, "b")`, 1))
	stdout, _, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "a1b", stdout)
}

func TestExecutor_ConsoleTee(t *testing.T) {
	var console bytes.Buffer
	e := newTestExecutor(t, WithConsole(&console))

	require.NoError(t, e.WriteStep(`print("live")`, 1))
	stdout, _, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "live\n", stdout)
	assert.Equal(t, "live\n", console.String())
}

func TestExecutor_RewriteReplacesStep(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`print("first")`, 1))
	require.NoError(t, e.WriteStep(`print("second")`, 1))
	stdout, _, err := e.ExecuteStep(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "second\n", stdout)
}

func TestExecutor_UnsupportedLanguage(t *testing.T) {
	e := newTestExecutor(t)

	assert.True(t, e.Supports("lua"))
	assert.True(t, e.Supports(" Lua "))
	assert.False(t, e.Supports("cobol"))
	assert.ErrorIs(t, e.WriteStepAs("cobol", "DISPLAY 'HI'.", 1), ErrUnsupportedLanguage)
}

func TestExecutor_CondenseOrdersNumerically(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	for _, n := range []int{10, 2, 1} {
		require.NoError(t, e.WriteStep(`local v = `+strings.Repeat("1", n), n))
	}

	out, err := e.Condense("sum numbers\nand print")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "lua", out[0].Language)

	data, err := os.ReadFile(filepath.Join(e.Dir(), "prior_code.lua"))
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "-- sum numbers\n-- and print\n"))
	i1 := strings.Index(text, "-- <step_1>")
	i2 := strings.Index(text, "-- <step_2>")
	i10 := strings.Index(text, "-- <step_10>")
	require.True(t, i1 >= 0 && i2 >= 0 && i10 >= 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i10)
	assert.Contains(t, text, "-- </step_10>")

	_, _, err = e.ExecuteStep(ctx, 1)
	assert.ErrorIs(t, err, ErrStepNotFound, "step files are deleted after condensing")
}

func TestExecutor_CondenseIsIdempotent(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`print(1)`, 1))
	_, err := e.Condense("task")
	require.NoError(t, err)

	path := filepath.Join(e.Dir(), "prior_code.lua")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	out, err := e.Condense("task")
	require.NoError(t, err)
	assert.Nil(t, out)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestExecutor_CondenseAppends(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.WriteStep(`a = 1`, 1))
	_, err := e.Condense("first")
	require.NoError(t, err)

	require.NoError(t, e.WriteStep(`b = 2`, 2))
	_, err = e.Condense("second")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(e.Dir(), "prior_code.lua"))
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), "-- first"), strings.Index(string(data), "-- second"))
}

func TestExecutor_CloseOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	e, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, e.WriteStep(`print(1)`, 1))

	require.NoError(t, e.Close())
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, e.Close())
	assert.ErrorIs(t, e.WriteStep(`print(2)`, 2), ErrClosed)
	_, _, err = e.ExecuteStep(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadInterpreters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interpreters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`interpreters:
  - language: python
    command: python3
    args: ["-u"]
  - language: sh
    command: sh
    comment: "#"
  - language: broken
`), 0o644))

	cfgs, err := LoadInterpreters(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "python", cfgs[0].Language)
	assert.Equal(t, []string{"-u"}, cfgs[0].Args)

	missing, err := LoadInterpreters(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInterpreter_Defaults(t *testing.T) {
	p := NewInterpreter(InterpreterConfig{Language: "Python", Command: "python3"}, "/tmp")
	assert.Equal(t, "python", p.Language())
	assert.Equal(t, ".python", p.Ext())
	assert.Equal(t, "#", p.Comment())

	p = NewInterpreter(InterpreterConfig{Language: "sh", Command: "sh", Ext: "sh"}, "/tmp")
	assert.Equal(t, ".sh", p.Ext())
}

func TestExecutor_InterpreterRun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	e := newTestExecutor(t, WithInterpreters(InterpreterConfig{Language: "sh", Command: "sh"}))
	ctx := context.Background()

	require.True(t, e.Supports("sh"))
	require.NoError(t, e.WriteStepAs("sh", "echo out; echo err >&2", 1))
	stdout, stderr, err := e.ExecuteStep(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)

	require.NoError(t, e.WriteStepAs("sh", "exit 3", 2))
	_, stderr, err = e.ExecuteStep(ctx, 2)
	require.NoError(t, err)
	assert.Contains(t, stderr, "exit status 3")

	out, err := e.Condense("shell task")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, filepath.Join(e.Dir(), "prior_code.sh"), out[0].Path)
	assert.Contains(t, out[0].Section, "# <step_1>")
}
