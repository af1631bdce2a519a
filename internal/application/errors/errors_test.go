package apperrors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/reglet-dev/netgate/internal/application/dto"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetail_Taxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantType values.ErrorType
	}{
		{"manifest", NewManifestError("load manifest", errors.New("bad")), values.ErrorInvalidManifest},
		{"parse error", &manifest.ParseError{Field: "api", Detail: "x"}, values.ErrorInvalidManifest},
		{"wrapped parse error", fmt.Errorf("session: %w", &manifest.ParseError{Field: "api", Detail: "x"}), values.ErrorInvalidManifest},
		{"api denied", NewAPIDenied("socket.tcp.send"), values.ErrorPermissionDenied},
		{"destination denied", NewDestinationDenied("tcp://a:1"), values.ErrorPermissionDenied},
		{"protocol", NewProtocolError("unknown method", nil), values.ErrorProtocol},
		{"timeout", NewTimeoutError("recv", os.ErrDeadlineExceeded), values.ErrorTimeout},
		{"socket", NewSocketError("connect", syscall.ECONNREFUSED), values.ErrorSocket},
		{"unknown", errors.New("mystery"), values.ErrorSocket},
		{"cancelled", fmt.Errorf("ping: %w", context.Canceled), values.ErrorProtocol},
		{"context deadline", context.DeadlineExceeded, values.ErrorTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Detail(tt.err)
			require.NotNil(t, d)
			assert.Equal(t, tt.wantType, d.Type)
			assert.NotEmpty(t, d.Message)
		})
	}
}

func TestDetail_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Detail(nil))
}

func TestDetail_PassesThroughExistingDetail(t *testing.T) {
	t.Parallel()
	orig := &dto.ErrorDetail{Type: values.ErrorTimeout, Message: "recv: timed out", Timeout: true}
	assert.Same(t, orig, Detail(fmt.Errorf("step 2: %w", orig)))
}

func TestDetail_TimeoutFlag(t *testing.T) {
	t.Parallel()
	d := Detail(NewTimeoutError("recv", nil))
	assert.True(t, d.Timeout)

	d = Detail(NewSocketError("recv", syscall.ECONNRESET))
	assert.False(t, d.Timeout)
	assert.Equal(t, "ECONNRESET", d.Code)
}

func TestFromIO(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromIO("recv", nil))

	var timeoutErr *TimeoutError
	assert.ErrorAs(t, FromIO("recv", fmt.Errorf("read: %w", os.ErrDeadlineExceeded)), &timeoutErr)

	var socketErr *SocketError
	err := FromIO("connect", &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED})
	require.ErrorAs(t, err, &socketErr)
	assert.Equal(t, "ECONNREFUSED", socketErr.Code)

	already := NewTimeoutError("accept", nil)
	assert.Same(t, already, FromIO("accept", already))
}

func TestErrInvalidHandle(t *testing.T) {
	t.Parallel()
	d := Detail(ErrInvalidHandle)
	assert.Equal(t, values.ErrorSocket, d.Type)
	assert.Equal(t, "EBADF", d.Code)
}
