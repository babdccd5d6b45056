package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/result"
)

type profile struct {
	Name string `json:"name"`
}

func TestDecode_BothShapesAgree(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "tagged", raw: `{"type":"success","answer":{"data":{"name":"A"},"code":"DATA_RETRIEVED"}}`},
		{name: "sniffed", raw: `{"Ok":{"data":{"name":"A"},"code":"DATA_RETRIEVED"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Decode[profile]([]byte(tc.raw), nil)
			require.NoError(t, err)
			require.True(t, r.IsOk())
			env := r.Unwrap()
			assert.Equal(t, "A", env.Data.Name)
			assert.Equal(t, result.CodeDataRetrieved, env.Code)
		})
	}
}

func TestDecode_ErrorBranchLogsAndPreservesDetail(t *testing.T) {
	raws := []string{
		`{"type":"error","answer":{"category":"network","message":"down","retryable":true,"traceId":"t-1"}}`,
		`{"Err":{"category":"network","message":"down","retryable":true,"traceId":"t-1"}}`,
	}
	for _, raw := range raws {
		var buf bytes.Buffer
		r, err := Decode[profile]([]byte(raw), log.New(&buf, "", 0))
		require.NoError(t, err)

		env, ok := r.Err()
		require.True(t, ok)
		assert.Equal(t, result.CategoryNetwork, env.Category)
		assert.Equal(t, "down", env.Message)
		assert.True(t, env.Retryable)
		assert.Equal(t, "t-1", env.TraceID)
		assert.Equal(t, result.SeverityGeneral, env.Severity)
		assert.Contains(t, buf.String(), `"message":"down"`)
	}
}

func TestDecode_NonEnvelopeErrors(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: `{"Err":"disk full"}`, want: "disk full"},
		{raw: `{"Err":null}`, want: classify.MessageNull},
		{raw: `{"type":"error","answer":42}`, want: result.DefaultMessage},
		{raw: `{"Err":{}}`, want: result.DefaultMessage},
	}
	for _, tc := range cases {
		r, err := Decode[profile]([]byte(tc.raw), nil)
		require.NoError(t, err, tc.raw)
		env, ok := r.Err()
		require.True(t, ok, tc.raw)
		assert.Equal(t, tc.want, env.Message, tc.raw)
		assert.False(t, env.Retryable, tc.raw)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []string{
		`not json`,
		`[1,2]`,
		`{}`,
		`{"type":"maybe","answer":{}}`,
		`{"type":7,"answer":{}}`,
		`{"type":"success"}`,
		`{"Ok":{"data":"not a profile"}}`,
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			r, err := Decode[profile]([]byte(raw), nil)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "err=%v", err)
			assert.True(t, r.IsErr())

			env := classify.Normalize(fmt.Errorf("invoke: %w", err))
			assert.Equal(t, result.CategoryParsing, env.Category)
			assert.Equal(t, result.CodeMalformedReply, env.Code)
		})
	}
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	ok := result.Success(result.SuccessEnvelope[profile]{Data: profile{Name: "B"}, Code: result.CodeOperationSuccessful})
	fail := result.Failure[profile](result.ErrorEnvelope{Category: result.CategoryNotFound, Message: "missing", ErrorType: "CategoriesNotFound"})

	for _, shape := range []Shape{ShapeTagged, ShapeSniffed} {
		raw, err := Encode(shape, ok)
		require.NoError(t, err)
		got, err := Decode[profile](raw, nil)
		require.NoError(t, err)
		assert.Equal(t, "B", got.Unwrap().Data.Name, shape.String())

		raw, err = Encode(shape, fail)
		require.NoError(t, err)
		got, err = Decode[profile](raw, nil)
		require.NoError(t, err)
		env, _ := got.Err()
		assert.Equal(t, "CategoriesNotFound", env.ErrorType, shape.String())
	}
}

func TestEncode_ShapeKeys(t *testing.T) {
	raw, err := Encode(ShapeSniffed, result.Ok(1))
	require.NoError(t, err)
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Contains(t, obj, "Ok")

	raw, err = Encode(ShapeTagged, result.Failure[int](result.ErrorEnvelope{Message: "x"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), `{"type":"error"`), string(raw))

	_, err = Encode(Shape(9), result.Ok(1))
	assert.Error(t, err)
}

func TestParseShape(t *testing.T) {
	for in, want := range map[string]Shape{"": ShapeTagged, "tagged": ShapeTagged, " Sniffed ": ShapeSniffed} {
		got, err := ParseShape(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseShape("xml")
	assert.Error(t, err)
}
