package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/torosent/crankbench/internal/config"
)

// MaxPayloadSize caps a payload loaded from body_file.
const MaxPayloadSize = 64 << 20

// Payload is the message a workload sends on every invocation. File payloads
// are read once when the workload is built so disk reads stay out of the
// measured path.
type Payload struct {
	data   []byte
	origin string
}

// LoadPayload resolves the inline body or body file of w. A workload without
// either gets an empty payload.
func LoadPayload(w config.WorkloadConfig) (Payload, error) {
	path := strings.TrimSpace(w.BodyFile)
	switch {
	case w.Body != "" && path != "":
		return Payload{}, errors.New("body and body file cannot both be provided")
	case w.Body != "":
		return Payload{data: []byte(w.Body), origin: "inline"}, nil
	case path == "":
		return Payload{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("body file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Payload{}, fmt.Errorf("body file: %w", err)
	}
	if info.IsDir() {
		return Payload{}, fmt.Errorf("body file %q is a directory", path)
	}
	if info.Size() > MaxPayloadSize {
		return Payload{}, fmt.Errorf("body file %q is larger than %d bytes", path, MaxPayloadSize)
	}
	data, err := io.ReadAll(io.LimitReader(f, MaxPayloadSize+1))
	if err != nil {
		return Payload{}, fmt.Errorf("body file: %w", err)
	}
	return Payload{data: data, origin: path}, nil
}

// Bytes returns the payload. Callers must not modify it.
func (p Payload) Bytes() []byte { return p.data }

// Len is the payload size in bytes.
func (p Payload) Len() int64 { return int64(len(p.data)) }

// Empty reports whether there is nothing to send.
func (p Payload) Empty() bool { return len(p.data) == 0 }

// Origin is "inline", the body file path, or empty.
func (p Payload) Origin() string { return p.origin }

// Reader returns a fresh reader over the payload.
func (p Payload) Reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(p.data))
}
