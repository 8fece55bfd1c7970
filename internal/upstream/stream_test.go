package upstream

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func collect(t *testing.T, s *Stream) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

const sampleBody = ": keepalive\n" +
	"event: ignored\n" +
	"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Héllo\"}}]}\n\n" +
	"data: {not json\n" +
	"data: {\"choices\":[{\"text\":\" wörld\"}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" 🚚\"}}]}\n" +
	"data: [DONE]\n"

func TestStreamYieldsDeltas(t *testing.T) {
	t.Parallel()

	got := collect(t, NewStream(io.NopCloser(strings.NewReader(sampleBody))))
	want := []Chunk{{Text: "Héllo"}, {Text: " wörld"}, {Text: " 🚚"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestStreamSplitDeliveriesMatchWholeLines(t *testing.T) {
	t.Parallel()

	whole := collect(t, NewStream(io.NopCloser(strings.NewReader(sampleBody))))
	oneByte := collect(t, NewStream(io.NopCloser(iotest.OneByteReader(strings.NewReader(sampleBody)))))
	half := collect(t, NewStream(io.NopCloser(iotest.HalfReader(strings.NewReader(sampleBody)))))

	if !reflect.DeepEqual(whole, oneByte) {
		t.Fatalf("one-byte deliveries diverged: %+v vs %+v", oneByte, whole)
	}
	if !reflect.DeepEqual(whole, half) {
		t.Fatalf("half deliveries diverged: %+v vs %+v", half, whole)
	}
}

func TestStreamStopsAtDoneSentinel(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n" +
		"data: [DONE]\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n"
	s := NewStream(io.NopCloser(strings.NewReader(body)))

	got := collect(t, s)
	if !reflect.DeepEqual(got, []Chunk{{Text: "Hi"}}) {
		t.Fatalf("unexpected chunks %+v", got)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after sentinel, got %v", err)
	}
}

func TestStreamFinishReasonEndsAfterDelta(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"},\"finish_reason\":\"stop\"}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"c\"}}]}\n"

	got := collect(t, NewStream(io.NopCloser(strings.NewReader(body))))
	want := []Chunk{{Text: "a"}, {Text: "b", IsFinal: true}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestStreamFinishWithoutTextEnds(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"length\"}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"after\"}}]}\n"
	got := collect(t, NewStream(io.NopCloser(strings.NewReader(body))))
	if len(got) != 0 {
		t.Fatalf("expected no chunks, got %+v", got)
	}
}

func TestStreamProcessesTrailingFrameWithoutNewline(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"
	got := collect(t, NewStream(io.NopCloser(strings.NewReader(body))))
	if !reflect.DeepEqual(got, []Chunk{{Text: "tail"}}) {
		t.Fatalf("unexpected chunks %+v", got)
	}
}

func TestStreamSurfacesReadErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	body := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n"),
		iotest.ErrReader(boom),
	)
	s := NewStream(io.NopCloser(body))
	if chunk, err := s.Next(); err != nil || chunk.Text != "x" {
		t.Fatalf("first Next: %+v %v", chunk, err)
	}
	if _, err := s.Next(); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, boom) {
		t.Fatalf("expected sticky read error, got %v", err)
	}
}

func TestStreamRejectsOverlongLine(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
		"data: " + strings.Repeat("x", MaxLineBytes)
	s := NewStream(io.NopCloser(strings.NewReader(body)))
	if chunk, err := s.Next(); err != nil || chunk.Text != "ok" {
		t.Fatalf("first Next: %+v %v", chunk, err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("error should be sticky, got %v", err)
	}
}

func TestStreamAcceptsLineLongerThanReadBuffer(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 100*1024)
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"" + text + "\"}}]}\ndata: [DONE]\n"
	got := collect(t, NewStream(io.NopCloser(strings.NewReader(body))))
	if len(got) != 1 || got[0].Text != text {
		t.Fatalf("unexpected chunks: %d", len(got))
	}
}
