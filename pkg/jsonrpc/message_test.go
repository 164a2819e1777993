package jsonrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff_Request(t *testing.T) {
	isReq, isNotif, err := Sniff([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	require.NoError(t, err)
	assert.True(t, isReq)
	assert.False(t, isNotif)
}

func TestSniff_Notification(t *testing.T) {
	isReq, isNotif, err := Sniff([]byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`))
	require.NoError(t, err)
	assert.True(t, isReq)
	assert.True(t, isNotif)
}

func TestSniff_Response(t *testing.T) {
	isReq, isNotif, err := Sniff([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	require.NoError(t, err)
	assert.False(t, isReq)
	assert.False(t, isNotif)
}

func TestSniff_Malformed(t *testing.T) {
	_, _, err := Sniff([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewRequest_MarshalsParams(t *testing.T) {
	req, err := NewRequest(NewStringID("id-1"), "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)
	assert.Equal(t, Version, req.JSONRPC)
	assert.Equal(t, "tools/call", req.Method)
	assert.JSONEq(t, `{"name":"echo"}`, string(req.Params))
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(NewNumberID(7), CodeMethodNotFound, "no such method")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "no such method", resp.Error.Error())
}
