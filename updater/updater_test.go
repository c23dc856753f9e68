package updater

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whitaker-io/chewdata/record"
)

func TestRenderInputBinding(t *testing.T) {
	u := New()
	rec := record.NewMap().Set("name", record.NewString("ava"))
	ctx := record.NewContext(rec)

	out, err := u.Render("hello {{ input.name }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello ava", out)
}

func TestIsVariable(t *testing.T) {
	assert.True(t, IsVariable("/users/{{ id }}"))
	assert.True(t, IsVariable("{% if x %}y{% endif %}"))
	assert.False(t, IsVariable("/users/static"))
}

func TestThrowProducesTemplateFailed(t *testing.T) {
	u := New()
	ctx := record.NewContext(record.NewMap())
	_, err := u.Render(`{{ throw(message="boom") }}`, ctx)
	require.Error(t, err)

	info, ok := err.(*record.ErrorInfo)
	require.True(t, ok)
	assert.Equal(t, record.ErrorKindTemplateFailed, info.Kind)
	assert.Contains(t, info.Message, "boom")
}

func TestJSONEncodeFilter(t *testing.T) {
	u := New()
	rec := record.NewMap().Set("a", record.NewInt(1))
	ctx := record.NewContext(rec)

	out, err := u.Render("{{ input | json_encode }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestApplyActionsMergeReplaceRemove(t *testing.T) {
	u := New()
	input := record.NewMap().Set("a", record.NewInt(1)).Set("b", record.NewInt(2))
	ctx := record.NewContext(input)

	actions := []Action{
		{Field: "/c", Pattern: "three", ActionType: ActionReplace},
		{Field: "/b", ActionType: ActionRemove},
	}

	out, err := Apply(u, input, actions, ctx)
	require.NoError(t, err)
	assert.Equal(t, "three", out.MapGet("c").String())
	assert.Nil(t, out.MapGet("b"))
	assert.Equal(t, int64(1), out.MapGet("a").Int())
}

func TestApplyJSONEncodeRootReplaceStaysStructured(t *testing.T) {
	u := New()
	input := record.NewMap().Set("number", record.NewInt(2))
	ctx := record.NewContext(input)

	actions := []Action{
		{Field: "/", Pattern: "{{ input | json_encode() }}"},
		{Field: "/doubled", Pattern: "{{ output.number * 2 }}", ActionType: ActionReplace},
	}

	out, err := Apply(u, input, actions, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.MapGet("number").Int())
	assert.Equal(t, "4", out.MapGet("doubled").String())
}

func TestApplyThrowAbortsRemainingActions(t *testing.T) {
	u := New()
	input := record.NewMap()
	ctx := record.NewContext(input)

	actions := []Action{
		{Field: "/x", Pattern: `{{ throw(message="nope") }}`, ActionType: ActionReplace},
		{Field: "/y", Pattern: "unreachable", ActionType: ActionReplace},
	}

	_, err := Apply(u, input, actions, ctx)
	require.Error(t, err)
}

func TestUUIDV4Function(t *testing.T) {
	u := New()
	ctx := record.NewContext(record.NewMap())
	out, err := u.Render(`{{ uuid_v4() }}`, ctx)
	require.NoError(t, err)
	assert.Len(t, out, 36)
}
