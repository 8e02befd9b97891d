package rdp

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccgroup/scrying/internal/core/model"
)

// fakeSession 按脚本发送事件
type fakeSession struct {
	connectErr error
	script     func(events chan<- Event, done <-chan struct{})
	events     chan Event
	done       chan struct{}
	cfg        SessionConfig
	dialErr    error
}

func (f *fakeSession) Connect(ctx context.Context, dial DialFunc) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	conn.Close()
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.script != nil {
		go f.script(f.events, f.done)
	}
	return nil
}

func (f *fakeSession) Events() <-chan Event { return f.events }

func (f *fakeSession) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	return nil
}

type stubDialer struct{ err error }

func (s stubDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, b := net.Pipe()
	b.Close()
	return a, nil
}

func factory(f *fakeSession) SessionFactory {
	return func(cfg SessionConfig) Session {
		f.cfg = cfg
		f.events = make(chan Event, 16)
		f.done = make(chan struct{})
		return f
	}
}

func tile(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func send(events chan<- Event, done <-chan struct{}, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-done:
		return false
	}
}

func newJob(t *testing.T) *model.Job {
	target := model.Target{Protocol: model.ProtocolRDP, Host: "192.0.2.45", Port: 3389}
	return model.NewJob(target, filepath.Join(t.TempDir(), "rdp", "192.0.2.45-3389.png"))
}

func newDriver(f *fakeSession, dialErr error, quiet, timeout time.Duration) *Driver {
	cfg := Config{Quiet: quiet}
	cfg.Timeout = timeout
	return NewDriver(stubDialer{err: dialErr}, cfg).WithSessionFactory(factory(f))
}

func TestCapture_RendersAfterQuietPeriod(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {
		// 多批更新，间隔小于静默时间
		for i := 0; i < 3; i++ {
			if !send(events, done, Event{Bitmaps: []Bitmap{{X: i * 64, Y: 0, Image: tile(64, 64, red)}}}) {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}}
	driver := newDriver(f, nil, 150*time.Millisecond, 5*time.Second)
	job := newJob(t)

	start := time.Now()
	outcome := driver.Capture(context.Background(), job)
	require.True(t, outcome.Success, "%s: %s", outcome.Kind, outcome.Message)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 1280, outcome.Width)
	assert.Equal(t, 1024, outcome.Height)
	assert.Equal(t, 1280, f.cfg.Width)

	file, err := os.Open(job.ArtifactPath)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	r, _, _, _ := img.At(130, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	r, _, _, _ = img.At(300, 300).RGBA()
	assert.Equal(t, uint32(0), r)
}

func TestCapture_ScalesToRequestedSize(t *testing.T) {
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {
		send(events, done, Event{Bitmaps: []Bitmap{{Image: tile(8, 8, color.RGBA{G: 255, A: 255})}}})
	}}
	cfg := Config{Quiet: 50 * time.Millisecond}
	cfg.Timeout = 5 * time.Second
	cfg.Width, cfg.Height = 320, 200
	driver := NewDriver(stubDialer{}, cfg).WithSessionFactory(factory(f))

	outcome := driver.Capture(context.Background(), newJob(t))
	require.True(t, outcome.Success, "%s: %s", outcome.Kind, outcome.Message)
	assert.Equal(t, 320, outcome.Width)
	assert.Equal(t, 200, outcome.Height)
	// 协商的桌面尺寸不小于 640x480
	assert.Equal(t, 640, f.cfg.Width)
	assert.Equal(t, 480, f.cfg.Height)
}

func TestCapture_NoBitmapIsNoData(t *testing.T) {
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {}}
	driver := newDriver(f, nil, 50*time.Millisecond, 200*time.Millisecond)
	job := newJob(t)

	outcome := driver.Capture(context.Background(), job)
	assert.False(t, outcome.Success)
	assert.Equal(t, model.KindNoData, outcome.Kind)
	_, err := os.Stat(job.ArtifactPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCapture_ContinuousUpdatesRenderAtHardTimeout(t *testing.T) {
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {
		for {
			if !send(events, done, Event{Bitmaps: []Bitmap{{Image: tile(4, 4, color.RGBA{B: 255, A: 255})}}}) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}}
	driver := newDriver(f, nil, 500*time.Millisecond, 200*time.Millisecond)

	outcome := driver.Capture(context.Background(), newJob(t))
	assert.True(t, outcome.Success, "%s: %s", outcome.Kind, outcome.Message)
}

func TestCapture_NLARequired(t *testing.T) {
	f := &fakeSession{connectErr: ErrNLARequired}
	driver := newDriver(f, nil, 50*time.Millisecond, time.Second)

	outcome := driver.Capture(context.Background(), newJob(t))
	assert.Equal(t, model.KindAuthRequired, outcome.Kind)
	assert.Contains(t, outcome.Message, "--rdp-user")
}

func TestCapture_UnrecognisedNegotiation(t *testing.T) {
	f := &fakeSession{connectErr: ErrNegotiation}
	driver := newDriver(f, nil, 50*time.Millisecond, time.Second)

	outcome := driver.Capture(context.Background(), newJob(t))
	assert.Equal(t, model.KindUnsupportedServer, outcome.Kind)
}

func TestCapture_ConnectRefused(t *testing.T) {
	f := &fakeSession{}
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	driver := newDriver(f, refused, 50*time.Millisecond, time.Second)

	outcome := driver.Capture(context.Background(), newJob(t))
	assert.Equal(t, model.KindConnect, outcome.Kind)
}

func TestCapture_SessionClosedBeforeBitmap(t *testing.T) {
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {
		send(events, done, Event{Err: ErrSessionClosed})
	}}
	driver := newDriver(f, nil, 50*time.Millisecond, time.Second)

	outcome := driver.Capture(context.Background(), newJob(t))
	assert.Equal(t, model.KindNoData, outcome.Kind)
}

func TestCapture_SessionClosedAfterBitmapRenders(t *testing.T) {
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {
		send(events, done, Event{Bitmaps: []Bitmap{{Image: tile(4, 4, color.RGBA{R: 1, A: 255})}}})
		send(events, done, Event{Err: ErrSessionClosed})
	}}
	driver := newDriver(f, nil, time.Second, 5*time.Second)

	outcome := driver.Capture(context.Background(), newJob(t))
	assert.True(t, outcome.Success)
}

func TestCapture_Cancelled(t *testing.T) {
	f := &fakeSession{script: func(events chan<- Event, done <-chan struct{}) {}}
	driver := newDriver(f, nil, time.Second, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	outcome := driver.Capture(ctx, newJob(t))
	assert.Equal(t, model.KindCancelled, outcome.Kind)
}
