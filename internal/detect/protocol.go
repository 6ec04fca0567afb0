package detect

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"detectd/internal/frame"
)

// Worker protocol: every message is a 4-byte big-endian length followed by a
// msgpack body. The daemon sends one request and reads exactly one response.
const (
	opPing   = "ping"
	opDetect = "detect"

	maxMessageSize = 512 << 20
)

type request struct {
	Op        string  `msgpack:"op"`
	Width     int     `msgpack:"width,omitempty"`
	Height    int     `msgpack:"height,omitempty"`
	MaxBoxes  int     `msgpack:"max_boxes,omitempty"`
	Threshold float64 `msgpack:"threshold,omitempty"`
	// Pixels holds Width*Height*4 little-endian float32 samples.
	Pixels []byte `msgpack:"pixels,omitempty"`
}

type response struct {
	OK    bool   `msgpack:"ok"`
	Error string `msgpack:"error,omitempty"`
	Model string `msgpack:"model,omitempty"`
	// Boxes are [left, top, right, bottom, class, score] rows.
	Boxes [][]float64 `msgpack:"boxes,omitempty"`
}

func writeMessage(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(body)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	return nil
}

func readMessage(r io.Reader, v any) error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(prefix)
	if size > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read message body: %w", err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

func encodePixels(buf frame.Buffer) []byte {
	out := make([]byte, len(buf.Pix)*4)
	for i, v := range buf.Pix {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeBoxes(rows [][]float64) ([]Box, error) {
	boxes := make([]Box, 0, len(rows))
	for i, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("box %d has %d values, want at least 4", i, len(row))
		}
		b := Box{
			Left:   float32(row[0]),
			Top:    float32(row[1]),
			Right:  float32(row[2]),
			Bottom: float32(row[3]),
			Score:  1,
		}
		if len(row) > 4 {
			b.Class = int(row[4])
		}
		if len(row) > 5 {
			b.Score = float32(row[5])
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}
