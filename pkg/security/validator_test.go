package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

type recordingSink struct {
	violations []string
}

func (s *recordingSink) RecordViolation(kind string) {
	s.violations = append(s.violations, kind)
}

func TestValidator_ValidateSize_RejectsOversize(t *testing.T) {
	sink := &recordingSink{}
	v := NewValidator(Config{MaxMessageSize: 16}, sink)

	err := v.ValidateSize(make([]byte, 64))
	require.NotNil(t, err)
	assert.Equal(t, protocol.InvalidRequest.Code(), err.Code())
	assert.Contains(t, sink.violations, "size_exceeded")
}

func TestValidator_ValidateSize_AllowsWithinLimit(t *testing.T) {
	v := NewValidator(Config{MaxMessageSize: 1024}, nil)
	assert.Nil(t, v.ValidateSize(make([]byte, 100)))
}

func TestValidator_ValidateMethod_RejectsEmpty(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)
	err := v.ValidateMethod("")
	require.NotNil(t, err)
	assert.Equal(t, protocol.InvalidRequest.Code(), err.Code())
}

func TestValidator_ValidateMethod_RejectsTooLong(t *testing.T) {
	v := NewValidator(Config{MaxMethodLen: 8}, nil)
	err := v.ValidateMethod("tools/list/extended")
	require.NotNil(t, err)
}

func TestValidator_ValidateMethod_RejectsControlChars(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)
	err := v.ValidateMethod("tools/\x00list")
	require.NotNil(t, err)
}

func TestValidator_ValidateMethod_AllowsNamespacedNames(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)
	for _, m := range []string{"initialize", "ping", "tools/list", "resources/templates/list", "completion/complete"} {
		assert.Nil(t, v.ValidateMethod(m), "expected %s to be valid", m)
	}
}

func TestValidator_ValidateParams_RejectsExcessiveDepth(t *testing.T) {
	v := NewValidator(Config{MaxParamDepth: 2, MaxParamNodes: 1000}, nil)
	nested, err := json.Marshal(map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{
				"c": "too deep",
			},
		},
	})
	require.NoError(t, err)

	verr := v.ValidateParams(nested)
	require.NotNil(t, verr)
	assert.Equal(t, protocol.InvalidRequest.Code(), verr.Code())
}

func TestValidator_ValidateParams_RejectsExcessiveNodes(t *testing.T) {
	v := NewValidator(Config{MaxParamDepth: 100, MaxParamNodes: 3}, nil)
	raw, err := json.Marshal([]interface{}{1, 2, 3, 4, 5})
	require.NoError(t, err)

	verr := v.ValidateParams(raw)
	require.NotNil(t, verr)
}

func TestValidator_ValidateParams_AllowsSmallPayload(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)
	raw, err := json.Marshal(map[string]interface{}{"name": "echo", "arguments": map[string]interface{}{"text": "hi"}})
	require.NoError(t, err)
	assert.Nil(t, v.ValidateParams(raw))
}

func TestValidator_ValidateRequest_RunsAllChecks(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)
	err := v.ValidateRequest([]byte(`{}`), "tools/call", json.RawMessage(`{"name":"echo"}`))
	assert.Nil(t, err)
}
