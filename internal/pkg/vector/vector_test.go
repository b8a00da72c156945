package vector

import (
	"math"
	"strings"
	"testing"
)

func TestSplitChunksCount(t *testing.T) {
	cases := []struct {
		name    string
		length  int
		window  int
		overlap int
		want    int
	}{
		{name: "fits_one_window", length: 800, window: 1000, overlap: 200, want: 1},
		{name: "exactly_one_window", length: 1000, window: 1000, overlap: 200, want: 1},
		{name: "just_over", length: 1001, window: 1000, overlap: 200, want: 2},
		{name: "two_windows_exact", length: 1800, window: 1000, overlap: 200, want: 2},
		{name: "three_windows", length: 2000, window: 1000, overlap: 200, want: 3},
		{name: "no_overlap", length: 2500, window: 1000, overlap: 0, want: 3},
		{name: "tiny", length: 1, window: 1000, overlap: 200, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := strings.Repeat("a", tc.length)
			got := SplitChunks(text, tc.window, tc.overlap)
			if len(got) != tc.want {
				t.Fatalf("SplitChunks(len=%d, w=%d, o=%d): got %d chunks, want %d",
					tc.length, tc.window, tc.overlap, len(got), tc.want)
			}
			// ceil((L-o)/(w-o)) when L > w, else 1.
			formula := 1
			if tc.length > tc.window {
				formula = int(math.Ceil(float64(tc.length-tc.overlap) / float64(tc.window-tc.overlap)))
			}
			if len(got) != formula {
				t.Fatalf("chunk count %d disagrees with formula %d", len(got), formula)
			}
		})
	}
}

func TestSplitChunksOverlap(t *testing.T) {
	const window, overlap = 100, 20
	text := strings.Repeat("abcdefghij", 35) // 350 runes
	chunks := SplitChunks(text, window, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		tail := string(prev[len(prev)-overlap:])
		head := string(cur[:overlap])
		if tail != head {
			t.Fatalf("chunk %d does not overlap previous by %d runes", i, overlap)
		}
	}
	// Starting offsets increase monotonically; reassembling without the
	// overlapped prefixes must reproduce the input.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		cur := []rune(chunks[i].Text)
		rebuilt.WriteString(string(cur[overlap:]))
	}
	if rebuilt.String() != text {
		t.Fatalf("chunks do not partition the document")
	}
}

func TestSplitChunksShortDocIsFullContent(t *testing.T) {
	text := "line one\nline two\nline three"
	chunks := SplitChunks(text, DefaultWindow, DefaultOverlap)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Fatalf("single chunk must equal the full content")
	}
	if chunks[0].StartLine != 1 || chunks[0].EndLine != 3 {
		t.Fatalf("line range: got %d-%d, want 1-3", chunks[0].StartLine, chunks[0].EndLine)
	}
}

func TestSplitChunksEmpty(t *testing.T) {
	if got := SplitChunks("", 1000, 200); got != nil {
		t.Fatalf("empty text: want nil, got %v", got)
	}
}

func TestCosine(t *testing.T) {
	v := []float32{1, 2, 3}
	neg := []float32{-1, -2, -3}
	if got := Cosine(v, v); math.Abs(got-1) > 1e-9 {
		t.Fatalf("Cosine(v, v) = %v, want 1", got)
	}
	if got := Cosine(v, neg); math.Abs(got+1) > 1e-9 {
		t.Fatalf("Cosine(v, -v) = %v, want -1", got)
	}
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := Cosine(a, b); math.Abs(got) > 1e-9 {
		t.Fatalf("Cosine(orthogonal) = %v, want 0", got)
	}
	zero := []float32{0, 0, 0}
	if got := Cosine(zero, v); got != 0 {
		t.Fatalf("Cosine(zero, v) = %v, want 0", got)
	}
	if got := Cosine(nil, v); got != 0 {
		t.Fatalf("Cosine(nil, v) = %v, want 0", got)
	}
}

func TestTopK(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},   // 0.0
		{1, 0},   // 1.0
		{1, 1},   // ~0.707
		{-1, 0},  // -1.0
		{2, 0},   // 1.0 (tie with index 1)
		{0.5, 0}, // 1.0 (tie)
	}
	got := TopK(query, candidates, 3)
	if len(got) != 3 {
		t.Fatalf("TopK returned %d results, want 3", len(got))
	}
	// All three perfect matches, earlier index first on ties.
	wantOrder := []int{1, 4, 5}
	for i, w := range wantOrder {
		if got[i].Index != w {
			t.Fatalf("result %d: got index %d, want %d (results=%v)", i, got[i].Index, w, got)
		}
	}

	if got := TopK(query, candidates, 100); len(got) != len(candidates) {
		t.Fatalf("k beyond candidates: got %d, want %d", len(got), len(candidates))
	}
	if got := TopK(query, nil, 3); got != nil {
		t.Fatalf("no candidates: want nil, got %v", got)
	}
	if got := TopK(query, candidates, 0); got != nil {
		t.Fatalf("k=0: want nil, got %v", got)
	}
}
