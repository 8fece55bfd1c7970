// Package sse implements the text/event-stream framing used by the relay and
// the live feeds, in both directions.
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// MaxLineBytes bounds one line read by a Scanner.
const MaxLineBytes = 1 << 20

// ErrLineTooLong is reported by Scanner.Err for a line over MaxLineBytes.
var ErrLineTooLong = errors.New("sse: line exceeds 1 MiB")

var nameReplacer = strings.NewReplacer("\n", "", "\r", "")

// Encode writes one record as "event: <name>\ndata: <json>\n\n".
func Encode(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal %s payload: %w", name, err)
	}
	var b strings.Builder
	b.Grow(len(name) + len(payload) + 16)
	if name != "" {
		b.WriteString("event: ")
		b.WriteString(nameReplacer.Replace(name))
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(payload)
	b.WriteString("\n\n")
	_, err = io.WriteString(w, b.String())
	return err
}

// Writer frames events onto a response and flushes after every record.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w; when w is an http.Flusher every record is flushed.
func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// SetHeaders prepares an HTTP response for streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Send writes a named event with a JSON payload.
func (w *Writer) Send(name string, data any) error {
	if err := Encode(w.w, name, data); err != nil {
		return err
	}
	w.flush()
	return nil
}

// Comment writes a comment line, used as a keepalive.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", nameReplacer.Replace(text)); err != nil {
		return err
	}
	w.flush()
	return nil
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}

// Message is one event read from a stream.
type Message struct {
	Event string
	ID    string
	Data  string
}

// Decode unmarshals the message data as JSON.
func (m Message) Decode(v any) error {
	if strings.TrimSpace(m.Data) == "" {
		return errors.New("sse: empty data")
	}
	return json.Unmarshal([]byte(m.Data), v)
}

// Scanner reads messages from an event stream. Blank lines end a message,
// lines starting with ':' are comments, a single space after the field colon
// is optional and unknown fields are ignored.
type Scanner struct {
	reader *bufio.Reader
	msg    Message
	err    error
	eof    bool
}

// NewScanner returns a scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next message. It returns false at the end of the
// stream or on error; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.eof || s.err != nil {
		return false
	}
	s.msg = Message{}

	var (
		event   string
		id      string
		data    []string
		hasData bool
	)
	for {
		line, err := s.readLine()
		if err != nil && line == "" {
			if err == io.EOF {
				s.eof = true
				if hasData {
					s.msg = Message{Event: event, ID: id, Data: strings.Join(data, "\n")}
					return true
				}
				return false
			}
			s.err = err
			return false
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				s.msg = Message{Event: event, ID: id, Data: strings.Join(data, "\n")}
				return true
			}
			event, id = "", ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			event = value
		case "id":
			id = value
		}
	}
}

func (s *Scanner) readLine() (string, error) {
	var line []byte
	for {
		frag, err := s.reader.ReadSlice('\n')
		if len(line)+len(frag) > MaxLineBytes {
			return "", ErrLineTooLong
		}
		line = append(line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

// Message returns the message read by the last successful Next.
func (s *Scanner) Message() Message {
	return s.msg
}

// Err returns the first non-EOF error encountered.
func (s *Scanner) Err() error {
	return s.err
}
