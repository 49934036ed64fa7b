package runctx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

func testBuilder() *Builder {
	return NewBuilder(template.New(nil),
		WithFacts(Facts{Cwd: "/work", Home: "/home/u", Temp: "/tmp", OS: "posix"}),
		WithEnviron(func() []string { return []string{"HOME=/home/u", "PATH=/bin", "EMPTY="} }),
	)
}

func docWithVars(vars ...types.Variable) *types.Document {
	return &types.Document{Version: 1, Vars: vars}
}

func lit(name string, raw any) types.Variable {
	v, err := types.FromGo(raw)
	if err != nil {
		panic(err)
	}
	return types.Variable{Name: name, Raw: v}
}

func TestBuild_VarsInOrder(t *testing.T) {
	doc := docWithVars(
		lit("a", "x"),
		lit("b", "${vars.a}y"),
	)
	ctx, err := testBuilder().Build(doc, nil)
	require.NoError(t, err)

	b, _ := ctx.Vars().Get("b")
	assert.Equal(t, "xy", b.String())
}

func TestBuild_ForwardReferenceStaysLiteral(t *testing.T) {
	doc := docWithVars(
		lit("b", "${vars.a}y"),
		lit("a", "x"),
	)
	ctx, err := testBuilder().Build(doc, nil)
	require.NoError(t, err)

	b, _ := ctx.Vars().Get("b")
	assert.Equal(t, "xy", b.String(), "a is a literal, so its raw value is already final")

	doc = docWithVars(
		lit("c", "${vars.b}!"),
		lit("b", "${vars.a}y"),
		lit("a", "x"),
	)
	ctx, err = testBuilder().Build(doc, nil)
	require.NoError(t, err)

	c, _ := ctx.Vars().Get("c")
	assert.Equal(t, "${vars.a}y!", c.String(), "no second pass")
}

func TestBuild_FullMatchKeepsType(t *testing.T) {
	doc := docWithVars(
		lit("list", []any{1, 2}),
		lit("copy", "${vars.list}"),
	)
	ctx, err := testBuilder().Build(doc, types.MapOf("name", "demo"))
	require.NoError(t, err)

	v, _ := ctx.Vars().Get("copy")
	assert.Equal(t, types.KindSequence, v.Kind())
}

func TestBuild_SeesFormEnvAndFacts(t *testing.T) {
	doc := docWithVars(
		lit("greeting", "${form.name}@${os}:${env.PATH}:${cwd}"),
	)
	ctx, err := testBuilder().Build(doc, types.MapOf("name", "demo"))
	require.NoError(t, err)

	v, _ := ctx.Vars().Get("greeting")
	assert.Equal(t, "demo@posix:/bin:/work", v.String())
	assert.Equal(t, "/home/u", ctx.Fact("home"))
	assert.Contains(t, ctx.Environ(), "EMPTY=")
}

func TestBuild_UnresolvedIsExpressionError(t *testing.T) {
	doc := docWithVars(lit("bad", "${vars.nope}"))
	_, err := testBuilder().Build(doc, nil)
	require.Error(t, err)
	assert.True(t, deckerr.HasCode(err, deckerr.CodeExprUnresolved))
	assert.Contains(t, err.Error(), "vars.bad")
}

func TestContext_FramesShadow(t *testing.T) {
	ctx := New()
	ctx.SetVar("x", types.Int(1))

	ctx.Push("vars", types.String("shadow"), 0)
	v, ok := ctx.Lookup("vars")
	require.True(t, ok)
	assert.Equal(t, "shadow", v.String())

	ctx.Push("item", types.String("inner"), 3)
	v, _ = ctx.Lookup("item")
	assert.Equal(t, "inner", v.String())
	loop, _ := ctx.Lookup("loop")
	idx, _ := loop.Map().Get("index")
	assert.Equal(t, "3", idx.String())

	ctx.Pop()
	ctx.Pop()
	v, _ = ctx.Lookup("vars")
	assert.Equal(t, types.KindMapping, v.Kind())
	_, ok = ctx.Lookup("loop")
	assert.False(t, ok)
	_, ok = ctx.Lookup("item")
	assert.False(t, ok)
}

func TestContext_StepResults(t *testing.T) {
	ctx := New()
	out := "first"
	ctx.SetStepResult("build", &types.StepResult{ExitCode: 0, Stdout: &out})

	step, _ := ctx.Lookup("step")
	build, ok := step.Map().Get("build")
	require.True(t, ok)
	code, _ := build.Map().Get("exit_code")
	assert.Equal(t, "0", code.String())

	ctx.SetStepResult("build", &types.StepResult{ExitCode: 2})
	r, ok := ctx.StepResult("build")
	require.True(t, ok)
	assert.Equal(t, 2, r.ExitCode)
	assert.Len(t, ctx.Results(), 1)
}

func TestContext_ErrorScope(t *testing.T) {
	ctx := New()
	_, ok := ctx.Lookup("error")
	assert.False(t, ok)

	ctx.SetError("build", "ProcessError", "exit 1")
	v, ok := ctx.Lookup("error")
	require.True(t, ok)
	typ, _ := v.Map().Get("type")
	assert.Equal(t, "ProcessError", typ.String())

	ctx.ClearError()
	_, ok = ctx.Lookup("error")
	assert.False(t, ok)
}

func TestBuild_WholeScopeIsSnapshot(t *testing.T) {
	doc := docWithVars(
		lit("a", "x"),
		lit("all", "${vars}"),
		lit("b", "x${vars.all}"),
	)
	ctx, err := testBuilder().Build(doc, nil)
	require.NoError(t, err)

	all, _ := ctx.Vars().Get("all")
	require.Equal(t, types.KindMapping, all.Kind())
	assert.Equal(t, []string{"a", "all", "b"}, all.Map().Keys())
	inner, _ := all.Map().Get("all")
	assert.Equal(t, "${vars}", inner.String(), "snapshot holds the raw value, not itself")

	b, _ := ctx.Vars().Get("b")
	assert.Equal(t, types.KindString, b.Kind())
	assert.True(t, strings.HasPrefix(b.String(), "x"))

	ctx.SetVar("extra", types.String("y"))
	assert.False(t, all.Map().Has("extra"))
}
