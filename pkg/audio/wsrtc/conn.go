// Package wsrtc carries session audio over a WebSocket connection.
//
// The wire protocol is deliberately small: binary messages are Opus packets
// at 48 kHz stereo with 20 ms frames, text messages are JSON control events.
// Inbound packets are decoded and normalised to the engine's working format
// via [audio.ConvertStream]; outbound frames are converted to the wire
// format, encoded, and written one Opus packet per 20 ms.
//
// A [Conn] satisfies the egress sink contract, so a session can hand it
// directly to the playback pacer.
package wsrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/coder/websocket"
)

// controlEvent is the JSON payload of a text message in either direction.
type controlEvent struct {
	// Type is the event kind: "bye" from the client ends the session.
	Type string `json:"type"`

	// Message carries optional human-readable detail, used by "error" events.
	Message string `json:"message,omitempty"`
}

// Config configures a [Conn].
type Config struct {
	// Format is the engine's working format that inbound audio is
	// normalised to. Zero value means 16 kHz mono.
	Format audio.Format

	// Buffer is the inbound frame channel capacity. Defaults to 64.
	Buffer int
}

func (c *Config) applyDefaults() {
	if c.Format.SampleRate == 0 {
		c.Format.SampleRate = 16000
	}
	if c.Format.Channels == 0 {
		c.Format.Channels = 1
	}
	if c.Buffer == 0 {
		c.Buffer = 64
	}
}

// Conn is one client's audio connection. Inbound frames are read from
// [Conn.Frames]; outbound frames are written with [Conn.WriteFrame].
type Conn struct {
	ws     *websocket.Conn
	dec    *opusDecoder
	enc    *opusEncoder
	frames <-chan audio.AudioFrame

	// writeMu serialises outbound packets; the encoder is stateful and
	// the websocket allows one concurrent writer per message type.
	writeMu sync.Mutex
	outConv audio.FormatConverter

	// pending holds a partial wire frame carried over between WriteFrame
	// calls so Opus always encodes full 20 ms frames.
	pending []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu      sync.Mutex
	readErr error
	dropped int
}

// Accept upgrades the HTTP request to a WebSocket and wraps it in a [Conn].
func Accept(w http.ResponseWriter, r *http.Request, cfg Config) (*Conn, error) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsrtc: accept: %w", err)
	}
	return NewConn(ws, cfg)
}

// NewConn wraps an established WebSocket connection. The read loop starts
// immediately; the caller consumes [Conn.Frames] until it closes.
func NewConn(ws *websocket.Conn, cfg Config) (*Conn, error) {
	cfg.applyDefaults()

	dec, err := newOpusDecoder()
	if err != nil {
		return nil, err
	}
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	raw := make(chan audio.AudioFrame, cfg.Buffer)
	c := &Conn{
		ws:      ws,
		dec:     dec,
		enc:     enc,
		frames:  audio.ConvertStream(raw, cfg.Format),
		outConv: audio.FormatConverter{Target: audio.Format{SampleRate: wireSampleRate, Channels: wireChannels}},
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.readLoop(raw)
	return c, nil
}

// Frames returns the inbound audio stream, normalised to the configured
// working format. The channel closes when the client disconnects or the
// connection is closed; check [Conn.Err] afterwards.
func (c *Conn) Frames() <-chan audio.AudioFrame {
	return c.frames
}

// Err returns the error that ended the read loop, or nil for a clean
// client-initiated close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// readLoop reads wire messages until the connection dies. It owns raw and
// closes it on exit, which in turn closes the converted frame stream.
func (c *Conn) readLoop(raw chan audio.AudioFrame) {
	defer close(raw)

	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			pcm, err := c.dec.decode(data)
			if err != nil {
				slog.Warn("wsrtc: dropping undecodable packet", "error", err)
				continue
			}
			frame := audio.AudioFrame{
				Data:       pcm,
				SampleRate: wireSampleRate,
				Channels:   wireChannels,
			}
			if offer(raw, frame) {
				c.mu.Lock()
				c.dropped++
				n := c.dropped
				c.mu.Unlock()
				if n == 1 || n%100 == 0 {
					slog.Warn("wsrtc: inbound buffer full, dropping oldest frame", "total_dropped", n)
				}
			}

		case websocket.MessageText:
			var ev controlEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Warn("wsrtc: invalid control event", "error", err)
				continue
			}
			if ev.Type == "bye" {
				_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
				return
			}
		}
	}
}

// offer enqueues frame on raw. When the channel is full the oldest buffered
// frame is evicted first, so fresh audio beats stale audio. Reports whether
// an eviction happened. The read loop is the only sender, so the freed slot
// cannot be stolen before the retry.
func offer(raw chan audio.AudioFrame, frame audio.AudioFrame) bool {
	select {
	case raw <- frame:
		return false
	default:
	}
	select {
	case <-raw:
	default:
	}
	select {
	case raw <- frame:
	default:
	}
	return true
}

// WriteFrame converts the frame to the wire format, splits it into 20 ms
// Opus packets, and writes them as binary messages. Partial tail audio is
// held back and prepended to the next call, so samples are never torn or
// padded mid-stream.
func (c *Conn) WriteFrame(ctx context.Context, frame audio.AudioFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	converted := c.outConv.Convert(frame)
	pcm := append(c.pending, converted.Data...)

	offset := 0
	for offset+wireFrameBytes <= len(pcm) {
		pkt, err := c.enc.encode(pcm[offset : offset+wireFrameBytes])
		if err != nil {
			return err
		}
		if err := c.ws.Write(ctx, websocket.MessageBinary, pkt); err != nil {
			return fmt.Errorf("wsrtc: write: %w", err)
		}
		offset += wireFrameBytes
	}
	c.pending = append(c.pending[:0], pcm[offset:]...)
	return nil
}

// Flush pads any held-back partial wire frame with silence and writes it.
// Call it after the last frame of a reply so its tail is not delayed until
// the next utterance.
func (c *Conn) Flush(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	padded := make([]byte, wireFrameBytes)
	copy(padded, c.pending)
	c.pending = c.pending[:0]

	pkt, err := c.enc.encode(padded)
	if err != nil {
		return err
	}
	if err := c.ws.Write(ctx, websocket.MessageBinary, pkt); err != nil {
		return fmt.Errorf("wsrtc: write: %w", err)
	}
	return nil
}

// SendError notifies the client of a server-side failure via a control event.
func (c *Conn) SendError(ctx context.Context, message string) error {
	data, err := json.Marshal(controlEvent{Type: "error", Message: message})
	if err != nil {
		return fmt.Errorf("wsrtc: marshal control event: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("wsrtc: write control event: %w", err)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once. Close errors
// are swallowed; the peer may already be gone.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
