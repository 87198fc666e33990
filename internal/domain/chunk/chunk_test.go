package chunk

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nexa-labs/ragd/internal/domain"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNewSplitter_RejectsInvalidParams(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSplitter(tc.size, tc.overlap)
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("NewSplitter(%d, %d) = %v, want ErrInvalidConfig", tc.size, tc.overlap, err)
			}
		})
	}
}

func TestSplit_CoversWholeTextWithOverlap(t *testing.T) {
	s, err := NewSplitter(5, 2)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	text := words(12)

	chunks := s.Split("d1", text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	// First chunk starts at the first word, last chunk ends at the last word.
	if chunks[0].Start() != 0 {
		t.Errorf("first chunk start = %d", chunks[0].Start())
	}
	last := chunks[len(chunks)-1]
	if last.End() != len([]rune(text)) {
		t.Errorf("last chunk end = %d, text runes = %d", last.End(), len([]rune(text)))
	}

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.Start() >= prev.End() {
			t.Errorf("chunks %d and %d do not overlap: prev end %d, cur start %d",
				i-1, i, prev.End(), cur.Start())
		}
		if cur.Ordinal() != prev.Ordinal()+1 {
			t.Errorf("ordinals not consecutive at %d", i)
		}
	}

	// Each window shares its trailing words with the next window's head.
	if !strings.HasPrefix(chunks[1].Text(), "w3 w4") {
		t.Errorf("second chunk should resume at the overlap, got %q", chunks[1].Text())
	}
}

func TestSplit_FinalChunkMayBeShort(t *testing.T) {
	s, _ := NewSplitter(5, 1)
	chunks := s.Split("d1", words(7))

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if got := len(strings.Fields(chunks[1].Text())); got != 3 {
		t.Errorf("final chunk words = %d, want 3", got)
	}
}

func TestSplit_TextShorterThanWindow(t *testing.T) {
	s, _ := NewSplitter(400, 80)
	chunks := s.Split("d1", "just a few words")

	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Text() != "just a few words" {
		t.Errorf("text = %q", chunks[0].Text())
	}
}

func TestSplit_WhitespaceOnlyYieldsNoChunks(t *testing.T) {
	s, _ := NewSplitter(5, 1)
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		if got := s.Split("d1", text); got != nil {
			t.Errorf("Split(%q) = %d chunks, want none", text, len(got))
		}
	}
}

func TestSplit_RuneOffsetsSliceSourceText(t *testing.T) {
	s, _ := NewSplitter(3, 1)
	text := "héllo wörld résumé naïve café"
	runes := []rune(text)

	for _, c := range s.Split("d1", text) {
		if got := string(runes[c.Start():c.End()]); got != c.Text() {
			t.Errorf("span [%d:%d) = %q, chunk text %q", c.Start(), c.End(), got, c.Text())
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, _ := NewSplitter(4, 2)
	text := words(20)

	a := s.Split("d1", text)
	b := s.Split("d1", text)
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkID(t *testing.T) {
	s, _ := NewSplitter(2, 0)
	chunks := s.Split("doc-7", words(4))

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].ID() != "doc-7:0" || chunks[1].ID() != "doc-7:1" {
		t.Errorf("ids = %q, %q", chunks[0].ID(), chunks[1].ID())
	}
	if chunks[1].DocumentID() != "doc-7" {
		t.Errorf("document id = %q", chunks[1].DocumentID())
	}
}
