package process

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestPumpBatchesBySize(t *testing.T) {
	rec := &recorder{}
	p := newPump(SourceStdout, rec, nil, testLogger(), nil, 20, time.Hour)

	var sb strings.Builder
	for i := 0; i < 45; i++ {
		sb.WriteString(strconv.Itoa(i) + "\n")
	}
	p.run(strings.NewReader(sb.String()))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	sizes := make([]int, 0, len(rec.batches))
	for _, b := range rec.batches {
		sizes = append(sizes, len(b))
	}
	if len(sizes) != 3 || sizes[0] != 20 || sizes[1] != 20 || sizes[2] != 5 {
		t.Errorf("expected batches [20 20 5], got %v", sizes)
	}
	for i, e := range rec.entries {
		if e.Message != strconv.Itoa(i) {
			t.Fatalf("entry %d out of order: %s", i, e.Message)
		}
	}
}

func TestPumpFlushesOnInterval(t *testing.T) {
	rec := &recorder{}
	p := newPump(SourceStdout, rec, nil, testLogger(), nil, 20, 50*time.Millisecond)

	pr, pw := io.Pipe()
	go p.run(pr)
	defer pw.Close()

	if _, err := pw.Write([]byte("first\n")); err != nil {
		t.Fatal(err)
	}

	// The stream stays open, so only the timer can deliver the line.
	waitFor(t, time.Second, func() bool {
		return len(rec.linesFrom(SourceStdout)) == 1
	})
}

func TestPumpAppliesParser(t *testing.T) {
	rec := &recorder{}
	parser := func(source Source, line string) (Level, string) {
		if level, msg, ok := strings.Cut(line, ": "); ok {
			if parsed, known := ParseLevel(level); known {
				return parsed, msg
			}
		}
		return LevelInfo, line
	}
	p := newPump(SourceStderr, rec, parser, testLogger(), nil, 20, time.Hour)
	p.run(strings.NewReader("warning: disk low\nplain line\n"))

	entries := rec.entriesFrom(SourceStderr)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarn || entries[0].Message != "disk low" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != LevelInfo {
		t.Errorf("expected INFO for unparsed line, got %s", entries[1].Level)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestPumpReadErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		cancelled bool
		want      Level
	}{
		{"closed while running", io.ErrClosedPipe, false, LevelWarn},
		{"other error", errors.New("boom"), false, LevelError},
		{"after cancel", io.ErrClosedPipe, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			p := newPump(SourceStdout, rec, nil, testLogger(), nil, 20, time.Hour)
			if tt.cancelled {
				p.cancel()
			}
			p.run(failingReader{err: tt.err})

			entries := rec.entriesFrom(SourceSystem)
			if tt.want == "" {
				if len(entries) != 0 {
					t.Errorf("expected no report after cancel, got %v", entries)
				}
				return
			}
			if len(entries) != 1 || entries[0].Level != tt.want {
				t.Errorf("expected one %s entry, got %v", tt.want, entries)
			}
		})
	}
}

func TestPumpLineTooLong(t *testing.T) {
	rec := &recorder{}
	p := newPump(SourceStdout, rec, nil, testLogger(), nil, 20, time.Hour)
	p.run(strings.NewReader(strings.Repeat("x", maxLineSize+10) + "\n"))

	entries := rec.entriesFrom(SourceSystem)
	if len(entries) != 1 || entries[0].Level != LevelError {
		t.Errorf("expected one ERROR entry, got %v", entries)
	}
}
