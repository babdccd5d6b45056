package host

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/result"
	"github.com/aponysus/hostcall/wire"
)

func newDemoHost(t *testing.T, opts ...LocalOption) *Local {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("hello"), 0o644))

	l := NewLocal(opts...)
	NewDemo(fs).Register(l)
	return l
}

func TestLocal_SuccessReplyInBothShapes(t *testing.T) {
	for _, shape := range []wire.Shape{wire.ShapeTagged, wire.ShapeSniffed} {
		t.Run(shape.String(), func(t *testing.T) {
			l := newDemoHost(t, WithShape(shape))

			raw, err := l.Invoke(context.Background(), "get_profile", map[string]any{"id": 7})
			require.NoError(t, err)

			r, err := wire.Decode[Profile](raw, nil)
			require.NoError(t, err)
			env := r.Unwrap()
			assert.Equal(t, "A", env.Data.Name)
			assert.Equal(t, result.CodeDataRetrieved, env.Code)
			assert.NotEmpty(t, env.Timestamp)
		})
	}
}

func TestLocal_HandlerErrorBecomesEnvelope(t *testing.T) {
	l := newDemoHost(t)

	raw, err := l.Invoke(context.Background(), "test_command", nil)
	require.NoError(t, err)

	r, err := wire.Decode[string](raw, nil)
	require.NoError(t, err)
	env, ok := r.Err()
	require.True(t, ok)
	assert.Equal(t, result.CategoryNotFound, env.Category)
	assert.Equal(t, "CategoriesNotFound", env.ErrorType)
	assert.Equal(t, result.SeverityLow, env.Severity)
	assert.False(t, env.Retryable)
	assert.NotEmpty(t, env.TraceID)
}

func TestLocal_ValidationAndNotFound(t *testing.T) {
	l := newDemoHost(t)

	cases := []struct {
		args     map[string]any
		category string
	}{
		{args: map[string]any{}, category: result.CategoryValidation},
		{args: map[string]any{"id": 99}, category: result.CategoryNotFound},
		{args: map[string]any{"id": "seven"}, category: result.CategoryParsing},
	}
	for _, tc := range cases {
		raw, err := l.Invoke(context.Background(), "get_profile", tc.args)
		require.NoError(t, err)
		r, err := wire.Decode[Profile](raw, nil)
		require.NoError(t, err)
		env, _ := r.Err()
		assert.Equal(t, tc.category, env.Category, "args=%v", tc.args)
	}
}

func TestLocal_UnknownCommandSuggests(t *testing.T) {
	l := newDemoHost(t)

	_, err := l.Invoke(context.Background(), "get_profil", nil)
	var unknown *UnknownCommandError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "get_profile", unknown.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "get_profile"`)

	_, err = l.Invoke(context.Background(), "completely_different", nil)
	require.True(t, errors.As(err, &unknown))
	assert.Empty(t, unknown.Suggestion)

	env := unknown.Envelope()
	assert.Equal(t, result.CodeUnknownCommand, env.Code)
	assert.Equal(t, result.CategoryNotFound, env.Category)
}

func TestLocal_PanicIsRecovered(t *testing.T) {
	var buf bytes.Buffer
	l := NewLocal(WithLogger(log.New(&buf, "", 0)))
	l.Register("boom", func(context.Context, *Request) (any, error) { panic("kaboom") })

	raw, err := l.Invoke(context.Background(), "boom", nil)
	require.NoError(t, err)
	r, err := wire.Decode[any](raw, nil)
	require.NoError(t, err)
	env, _ := r.Err()
	assert.Equal(t, result.CategorySystem, env.Category)
	assert.Contains(t, env.Message, "kaboom")
	assert.Contains(t, buf.String(), "panic in boom")
}

func TestLocal_FlakyEmitsEventsAndSeesAttempt(t *testing.T) {
	b := bus.New()
	var events []map[string]any
	b.Listen("flaky://attempt", func(ev bus.Event) {
		v, err := bus.Decode[map[string]any](ev)
		require.NoError(t, err)
		events = append(events, v)
	})
	l := newDemoHost(t, WithEvents(b))

	args := map[string]any{"key": "k", "failures": 1}
	ctx := observe.WithAttemptInfo(context.Background(), observe.AttemptInfo{Attempt: 0})
	raw, err := l.Invoke(ctx, "flaky", args)
	require.NoError(t, err)
	r, _ := wire.Decode[map[string]any](raw, nil)
	env, ok := r.Err()
	require.True(t, ok)
	assert.True(t, env.Retryable)

	ctx = observe.WithAttemptInfo(context.Background(), observe.AttemptInfo{Attempt: 1})
	raw, err = l.Invoke(ctx, "flaky", args)
	require.NoError(t, err)
	r, _ = wire.Decode[map[string]any](raw, nil)
	assert.True(t, r.IsOk())

	require.Len(t, events, 2)
	assert.Equal(t, float64(1), events[1]["attempt"])
}

func TestLocal_SlowHonoursContext(t *testing.T) {
	l := newDemoHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	raw, err := l.Invoke(ctx, "slow", map[string]any{"ms": 5000})
	require.NoError(t, err)
	r, _ := wire.Decode[string](raw, nil)
	assert.True(t, r.IsErr())
}

func TestLocal_ReadFile(t *testing.T) {
	l := newDemoHost(t)

	raw, err := l.Invoke(context.Background(), "read_file", map[string]any{"path": "/notes.txt"})
	require.NoError(t, err)
	r, _ := wire.Decode[string](raw, nil)
	assert.Equal(t, "hello", r.Unwrap().Data)

	raw, err = l.Invoke(context.Background(), "read_file", map[string]any{"path": "/missing.txt"})
	require.NoError(t, err)
	r, _ = wire.Decode[string](raw, nil)
	env, _ := r.Err()
	assert.Equal(t, result.CategoryFileSystem, env.Category)
	assert.Equal(t, result.CodeFileNotFound, env.Code)
}

func TestLocal_CommandsAndEcho(t *testing.T) {
	l := newDemoHost(t)
	assert.Equal(t, []string{"echo", "flaky", "get_profile", "read_file", "slow", "test_command"}, l.Commands())

	raw, err := l.Invoke(context.Background(), "echo", map[string]any{"a": "b"})
	require.NoError(t, err)
	r, _ := wire.Decode[map[string]string](raw, nil)
	assert.Equal(t, map[string]string{"a": "b"}, r.Unwrap().Data)
}
