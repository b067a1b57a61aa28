// Package wire implements the framing used between qermital instances: an
// 8 digit zero-padded ASCII length header followed by a UTF-8 JSON body.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"pkt.systems/qermital/schema"
)

const (
	// HeaderLen is the size of the decimal length header.
	HeaderLen = 8
	// MaxBodyLen is the largest body the header can describe.
	MaxBodyLen = 99999999
)

// Encode frames msg for the wire.
func Encode(msg schema.Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodyLen {
		return nil, fmt.Errorf("message body of %d bytes exceeds %d", len(body), MaxBodyLen)
	}
	out := make([]byte, 0, HeaderLen+len(body))
	out = fmt.Appendf(out, "%0*d", HeaderLen, len(body))
	return append(out, body...), nil
}

// Decoder reassembles framed messages from arbitrarily split reads. Bytes are
// fed with Write and complete messages taken with Decode; a partial header
// or body stays buffered until more bytes arrive.
type Decoder struct {
	buf  []byte
	need int
	err  error
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{need: -1}
}

// Write buffers p. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Decode returns the next complete message. ok is false when more bytes are
// needed. A framing error is sticky: the stream cannot be resynchronised.
func (d *Decoder) Decode() (msg schema.Message, ok bool, err error) {
	if d.err != nil {
		return schema.Message{}, false, d.err
	}
	if d.need < 0 {
		if len(d.buf) < HeaderLen {
			return schema.Message{}, false, nil
		}
		n, err := parseHeader(d.buf[:HeaderLen])
		if err != nil {
			d.err = err
			return schema.Message{}, false, err
		}
		d.buf = d.buf[HeaderLen:]
		d.need = n
	}
	if len(d.buf) < d.need {
		return schema.Message{}, false, nil
	}
	body := d.buf[:d.need]
	d.buf = d.buf[d.need:]
	d.need = -1
	msg, err = decodeBody(body)
	if err != nil {
		return schema.Message{}, false, err
	}
	return msg, true, nil
}

// ReadMessage reads exactly one framed message from r. It blocks until the
// message is complete; callers bound it with a read deadline. A stream that
// ends before any byte arrived returns io.EOF.
func ReadMessage(r io.Reader) (schema.Message, error) {
	dec := NewDecoder()
	chunk := make([]byte, 512)
	total := 0
	for {
		msg, ok, err := dec.Decode()
		if err != nil {
			return schema.Message{}, err
		}
		if ok {
			return msg, nil
		}
		n, readErr := r.Read(chunk)
		if n > 0 {
			total += n
			_, _ = dec.Write(chunk[:n])
			continue
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if total == 0 {
					return schema.Message{}, io.EOF
				}
				return schema.Message{}, io.ErrUnexpectedEOF
			}
			return schema.Message{}, readErr
		}
	}
}

// WriteMessage frames msg and writes it to w in one call.
func WriteMessage(w io.Writer, msg schema.Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func parseHeader(header []byte) (int, error) {
	n := 0
	for _, b := range header {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: %q", schema.ErrFraming, header)
		}
		n = n*10 + int(b-'0')
	}
	return n, nil
}

// decodeBody accepts any JSON value. Fields that are absent or not strings
// are treated as null; a non-object body yields an empty message.
func decodeBody(body []byte) (schema.Message, error) {
	if !json.Valid(body) {
		return schema.Message{}, fmt.Errorf("%w: malformed JSON", schema.ErrPayload)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return schema.Message{}, nil
	}
	var msg schema.Message
	if action := stringField(fields, "action"); action != nil {
		msg.Action = *action
	}
	msg.Folder = stringField(fields, "folder")
	msg.Command = stringField(fields, "command")
	return msg, nil
}

func stringField(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}
