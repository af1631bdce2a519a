package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/netgate/internal/domain/values"
)

func TestCallRequest_Validate(t *testing.T) {
	t.Parallel()
	ok := CallRequest{Module: "socket", Submodule: "tcp", Method: "send"}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "socket.tcp.send", ok.Name())

	for _, r := range []CallRequest{
		{Submodule: "tcp", Method: "send"},
		{Module: "socket", Method: "send"},
		{Module: "socket", Submodule: "tcp"},
	} {
		assert.Error(t, r.Validate())
	}
}

func TestCallRequest_MultiResponseAlias(t *testing.T) {
	t.Parallel()
	var a, b CallRequest
	require.NoError(t, json.Unmarshal([]byte(`{"module":"m","submodule":"s","method":"x","id":1,"multiresponse":true}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"module":"m","submodule":"s","method":"x","id":2,"multiresp":true}`), &b))
	assert.True(t, a.IsMultiResponse())
	assert.True(t, b.IsMultiResponse())
	assert.False(t, CallRequest{}.IsMultiResponse())
}

func TestParams_FromJSON(t *testing.T) {
	t.Parallel()
	var req CallRequest
	require.NoError(t, json.Unmarshal([]byte(`{"params":["127.0.0.1", 5701, true, [104,105], {"port": 80}, null, 1.5]}`), &req))
	p := req.Params

	host, err := p.String(0)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	port, err := p.Int(1)
	require.NoError(t, err)
	assert.Equal(t, 5701, port)

	flag, err := p.BoolOr(2, false)
	require.NoError(t, err)
	assert.True(t, flag)

	data, err := p.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)

	obj, err := p.Object(4)
	require.NoError(t, err)
	n, err := ObjectView(obj).Int("port", 0)
	require.NoError(t, err)
	assert.Equal(t, 80, n)

	assert.False(t, p.Has(5))
	def, err := p.IntOr(5, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, def)

	_, err = p.Int(6)
	assert.Error(t, err, "fractional numbers are rejected")

	_, err = p.String(1)
	assert.Error(t, err)

	_, err = p.Int(42)
	assert.Error(t, err)
}

func TestParams_BytesRejectsNonBytes(t *testing.T) {
	t.Parallel()
	p := Params{[]any{1.0, 300.0}}
	_, err := p.Bytes(0)
	assert.Error(t, err)
}

func TestErrorDetail_Error(t *testing.T) {
	t.Parallel()
	d := &ErrorDetail{Type: "sockerror", Message: "connect failed", Code: "ECONNREFUSED"}
	assert.Equal(t, "sockerror: connect failed (ECONNREFUSED)", d.Error())
}

func TestParams_Handle(t *testing.T) {
	t.Parallel()
	h := values.NewSocketHandle(3, 2)

	tests := []struct {
		name    string
		param   any
		want    values.SocketHandle
		wantErr bool
	}{
		{name: "typed", param: h, want: h},
		{name: "json number", param: float64(8589934595), want: h},
		{name: "uint64", param: uint64(8589934595), want: h},
		{name: "decimal string", param: "8589934595", want: h},
		{name: "negative", param: -1, wantErr: true},
		{name: "fraction", param: 1.5, wantErr: true},
		{name: "garbage", param: "abc", wantErr: true},
		{name: "bool", param: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Params{tt.param}.Handle(0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Params{}.Handle(0)
	assert.Error(t, err)
}

func TestParams_IntRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		param   any
		want    int
		wantErr bool
	}{
		{name: "int64 in range", param: int64(65507), want: 65507},
		{name: "negative int64", param: int64(-1), want: -1},
		{name: "int64 above int32", param: int64(1) << 40, wantErr: true},
		{name: "int above int32", param: 1 << 40, wantErr: true},
		{name: "numeric string above int32", param: "4294967296", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Params{tt.param}.Int(0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
