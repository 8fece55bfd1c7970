package upstream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	// MaxLineBytes bounds one event-stream line, newline included.
	MaxLineBytes = 1 << 20
)

// ErrLineTooLong is returned when the backend sends a line longer than
// MaxLineBytes.
var ErrLineTooLong = errors.New("upstream: event line exceeds 1 MiB")

// Chunk is one text delta produced by the backend.
type Chunk struct {
	Text    string
	IsFinal bool
}

// Stream is a pull-based, finite sequence of deltas. Next returns io.EOF once
// the backend signals completion or the body ends. Stream is not safe for
// concurrent use.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
	err    error
}

// NewStream reads deltas from an event-stream body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:   body,
		reader: bufio.NewReaderSize(body, 32*1024),
	}
}

type frame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text         string  `json:"text"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Next returns the next non-empty delta.
func (s *Stream) Next() (Chunk, error) {
	if s.err != nil {
		return Chunk{}, s.err
	}
	if s.done {
		return Chunk{}, io.EOF
	}
	for {
		// Bytes accumulate until a full line is available, so a frame split
		// across network reads is decoded whole.
		line, readErr := s.readLine()
		if line != "" {
			chunk, ok, finished := parseLine(line)
			if finished {
				s.done = true
			}
			if ok {
				return chunk, nil
			}
			if finished {
				return Chunk{}, io.EOF
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.done = true
				return Chunk{}, io.EOF
			}
			s.err = readErr
			return Chunk{}, readErr
		}
	}
}

// readLine returns the next line including its newline. The final line of
// the body may lack one.
func (s *Stream) readLine() (string, error) {
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

// Close releases the underlying connection.
func (s *Stream) Close() error {
	s.done = true
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// parseLine interprets one frame. ok reports a yieldable chunk; finished
// reports that the sequence ends after this frame.
func parseLine(line string) (chunk Chunk, ok bool, finished bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, dataPrefix) {
		return Chunk{}, false, false
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		return Chunk{}, false, true
	}

	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return Chunk{}, false, false
	}
	if len(f.Choices) == 0 {
		return Chunk{}, false, false
	}
	choice := f.Choices[0]
	text := choice.Delta.Content
	if text == "" {
		text = choice.Text
	}
	finished = choice.FinishReason != nil && *choice.FinishReason != ""
	if text == "" {
		return Chunk{}, false, finished
	}
	return Chunk{Text: text, IsFinal: finished}, true, finished
}
