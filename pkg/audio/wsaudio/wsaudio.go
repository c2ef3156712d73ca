// Package wsaudio bridges browser audio over a websocket, implementing both
// [audio.CaptureDevice] and [audio.Player] on a single connection.
//
// Wire protocol:
//
//   - Client → server, binary: raw 16-bit little-endian mono PCM chunks from
//     the microphone.
//   - Server → client, binary: a synthesized clip to play.
//   - Server → client, text: {"type":"stop"} — abort the current clip.
//   - Client → server, text: {"type":"played"} — the current clip finished.
//
// One client at a time; a second connection replaces the first.
package wsaudio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/XMaster-Denis/mock-tech-interview-ai/pkg/audio"
)

// ErrNoClient is returned by Play when no browser is connected.
var ErrNoClient = errors.New("wsaudio: no client connected")

const writeTimeout = 5 * time.Second

type controlMsg struct {
	Type string `json:"type"`
}

// Device is a websocket-backed audio device. Register it on a mux
// (typically at /audio) and hand it to the application as both the capture
// device and the player.
type Device struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	samples chan audio.Sample
	current *playback
	started time.Time
	closed  bool
}

var (
	_ audio.CaptureDevice = (*Device)(nil)
	_ audio.Player        = (*Device)(nil)
	_ http.Handler        = (*Device)(nil)
)

// New creates a Device. buffer sizes the capture channel; values below one
// fall back to 64.
func New(buffer int) *Device {
	if buffer < 1 {
		buffer = 64
	}
	return &Device{
		samples: make(chan audio.Sample, buffer),
		started: time.Now(),
	}
}

// Start implements [audio.CaptureDevice]. The channel carries samples from
// whichever client is currently connected and stays open across reconnects.
func (d *Device) Start(ctx context.Context) (<-chan audio.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("wsaudio: device closed")
	}
	return d.samples, nil
}

// ServeHTTP accepts a browser connection and runs its read loop.
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("wsaudio: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(1 << 20)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server closed")
		return
	}
	if prev := d.conn; prev != nil {
		prev.Close(websocket.StatusPolicyViolation, "replaced by new client")
	}
	d.conn = conn
	d.mu.Unlock()

	slog.Info("wsaudio: client connected", "remote", r.RemoteAddr)
	d.readLoop(r.Context(), conn)

	d.mu.Lock()
	if d.conn == conn {
		d.conn = nil
	}
	// A vanished client can never ack its clip.
	if d.current != nil {
		d.current.resolve(errors.New("wsaudio: client disconnected"))
		d.current = nil
	}
	d.mu.Unlock()
}

// readLoop consumes microphone PCM and control messages until the
// connection dies.
func (d *Device) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			slog.Debug("wsaudio: read loop ended", "err", err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			d.pushSample(data)

		case websocket.MessageText:
			var msg controlMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("wsaudio: bad control message", "err", err)
				continue
			}
			if msg.Type == "played" {
				d.mu.Lock()
				if d.current != nil {
					d.current.resolve(nil)
					d.current = nil
				}
				d.mu.Unlock()
			}
		}
	}
}

// pushSample converts a PCM chunk into a level sample. A full capture
// channel drops the oldest pending sample rather than stalling the reader.
func (d *Device) pushSample(pcm []byte) {
	s := audio.Sample{
		Level:     rmsLevel(pcm),
		Frame:     pcm,
		Timestamp: time.Since(d.started),
	}
	select {
	case d.samples <- s:
	default:
		select {
		case <-d.samples:
		default:
		}
		select {
		case d.samples <- s:
		default:
		}
	}
}

// Play implements [audio.Player]: it sends the clip as one binary frame and
// returns a playback handle resolved by the client's "played" ack.
func (d *Device) Play(ctx context.Context, clip []byte) (audio.Playback, error) {
	d.mu.Lock()
	conn := d.conn
	if conn == nil {
		d.mu.Unlock()
		return nil, ErrNoClient
	}
	if d.current != nil {
		d.current.resolve(context.Canceled)
	}
	pb := newPlayback(d, conn)
	d.current = pb
	d.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageBinary, clip); err != nil {
		d.mu.Lock()
		if d.current == pb {
			d.current = nil
		}
		d.mu.Unlock()
		return nil, errors.Join(errors.New("wsaudio: send clip"), err)
	}
	return pb, nil
}

// Close implements both device interfaces.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.current != nil {
		d.current.resolve(context.Canceled)
		d.current = nil
	}
	if d.conn != nil {
		d.conn.Close(websocket.StatusNormalClosure, "server shutting down")
		d.conn = nil
	}
	return nil
}

// rmsLevel computes the normalized RMS of 16-bit little-endian PCM, in
// [0, 1]. Odd trailing bytes are ignored.
func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		f := float64(v) / math.MaxInt16
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

// playback is one in-flight clip.
type playback struct {
	dev  *Device
	conn *websocket.Conn
	done chan error
	once sync.Once
}

var _ audio.Playback = (*playback)(nil)

func newPlayback(dev *Device, conn *websocket.Conn) *playback {
	return &playback{dev: dev, conn: conn, done: make(chan error, 1)}
}

// Done implements [audio.Playback].
func (p *playback) Done() <-chan error { return p.done }

// Stop implements [audio.Playback]: it tells the client to abort the clip
// and resolves the handle with [context.Canceled].
func (p *playback) Stop() {
	msg, _ := json.Marshal(controlMsg{Type: "stop"})
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		slog.Warn("wsaudio: stop message failed", "err", err)
	}

	p.dev.mu.Lock()
	if p.dev.current == p {
		p.dev.current = nil
	}
	p.dev.mu.Unlock()
	p.resolve(context.Canceled)
}

func (p *playback) resolve(err error) {
	p.once.Do(func() { p.done <- err })
}
