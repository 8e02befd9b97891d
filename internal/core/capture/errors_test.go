package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccgroup/scrying/internal/core/model"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("vnc handshake: %w", NewError(model.KindAuthRequired, "192.0.2.1:5900", errors.New("server requires a password")))

	assert.True(t, errors.Is(err, ErrAuthRequired))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, &Error{Kind: model.KindAuthRequired, Target: "192.0.2.1:5900"}))
	assert.False(t, errors.Is(err, &Error{Kind: model.KindAuthRequired, Target: "other"}))
	assert.Equal(t, model.KindAuthRequired, KindOf(err))
}

func TestKindOf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	_, dialErr := net.DialTimeout("tcp", addr, time.Second)
	require.Error(t, dialErr)

	cases := []struct {
		err  error
		kind model.ErrorKind
	}{
		{nil, model.KindNone},
		{context.Canceled, model.KindCancelled},
		{fmt.Errorf("wait: %w", context.DeadlineExceeded), model.KindTimeout},
		{os.ErrDeadlineExceeded, model.KindTimeout},
		{dialErr, model.KindConnect},
		{&net.DNSError{Err: "no such host", Name: "nope.invalid"}, model.KindConnect},
		{io.ErrUnexpectedEOF, model.KindProtocol},
		{&os.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}, model.KindIO},
		{errors.New("something odd"), model.KindProtocol},
		{ErrNoData, model.KindNoData},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, KindOf(c.err), "%v", c.err)
	}
}

func TestFailure(t *testing.T) {
	target := model.Target{Protocol: model.ProtocolRDP, Host: "192.0.2.1", Port: 3389}
	outcome := Failure(target, context.DeadlineExceeded)
	assert.False(t, outcome.Success)
	assert.Equal(t, model.KindTimeout, outcome.Kind)
	assert.Equal(t, context.DeadlineExceeded.Error(), outcome.Message)

	outcome = Failure(target, ErrNoData)
	assert.Equal(t, model.KindNoData, outcome.Kind)
	assert.Equal(t, "no screen data", outcome.Message)
}

func TestContextError(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, model.KindCancelled, ContextError(parent, "t", "connect").Kind)

	ctx, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-ctx.Done()
	assert.Equal(t, model.KindTimeout, ContextError(ctx, "t", "connect").Kind)
}

func TestOptionsSize(t *testing.T) {
	w, h := Options{}.Size(1280, 1024)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 1024, h)
	w, h = Options{Width: 800, Height: 600}.Size(1280, 1024)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}
