package vector

import (
	"container/heap"
	"math"
	"sort"
)

const (
	// DefaultWindow is the chunk window size in runes.
	DefaultWindow = 1000
	// DefaultOverlap is the number of runes shared by consecutive chunks.
	DefaultOverlap = 200
)

// Chunk is one fixed-window slice of a document's text.
type Chunk struct {
	Index     int
	Text      string
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive
}

// SplitChunks splits text into overlapping fixed-size windows.
// Windows are measured in runes so a UTF-8 sequence is never cut in half.
// Text that fits in a single window yields exactly one chunk equal to the
// full text. Consecutive chunks overlap by exactly `overlap` runes except
// possibly the last.
func SplitChunks(text string, window, overlap int) []Chunk {
	if text == "" {
		return nil
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window - 1
	}
	step := window - overlap

	r := []rune(text)

	// lineAt[i] = 1-based line number of rune i.
	lineAt := make([]int, len(r))
	line := 1
	for i, c := range r {
		lineAt[i] = line
		if c == '\n' {
			line++
		}
	}

	out := make([]Chunk, 0, (len(r)/step)+1)
	for start := 0; start < len(r); start += step {
		end := start + window
		if end > len(r) {
			end = len(r)
		}
		out = append(out, Chunk{
			Index:     len(out),
			Text:      string(r[start:end]),
			StartLine: lineAt[start],
			EndLine:   lineAt[end-1],
		})
		if end == len(r) {
			break
		}
	}
	return out
}

// Cosine returns the cosine similarity of two vectors. A zero or empty
// vector compares as 0 against anything.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Scored pairs a candidate index with its similarity to the query.
type Scored struct {
	Index int
	Score float64
}

type scoredMinHeap []Scored

func (h scoredMinHeap) Len() int { return len(h) }
func (h scoredMinHeap) Less(i, j int) bool {
	if h[i].Score == h[j].Score {
		// Higher index is "worse" so earlier candidates win ties.
		return h[i].Index > h[j].Index
	}
	return h[i].Score < h[j].Score
}
func (h scoredMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredMinHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *scoredMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// TopK returns the k candidates most similar to query, highest score first.
// Ties break toward the earlier candidate index.
func TopK(query []float32, candidates [][]float32, k int) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	h := &scoredMinHeap{}
	heap.Init(h)

	for i, cand := range candidates {
		s := Scored{Index: i, Score: Cosine(query, cand)}
		if h.Len() < k {
			heap.Push(h, s)
			continue
		}
		worst := (*h)[0]
		if s.Score > worst.Score || (s.Score == worst.Score && s.Index < worst.Index) {
			(*h)[0] = s
			heap.Fix(h, 0)
		}
	}

	out := make([]Scored, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, heap.Pop(h).(Scored))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Index < out[j].Index
		}
		return out[i].Score > out[j].Score
	})
	return out
}
