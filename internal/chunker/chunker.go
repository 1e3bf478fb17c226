// Package chunker splits document text into fixed-size overlapping windows.
package chunker

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Window is one chunk of text with its character offsets in the source.
// End is exclusive.
type Window struct {
	Text  string
	Start int
	End   int
}

// Chunker splits text into windows of size characters that advance by
// size-overlap characters. Sizes are counted in runes, not bytes.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
// An overlap that is not smaller than the chunk size is clamped to a quarter of it.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Step is the distance between the starts of consecutive windows.
func (c *Chunker) Step() int { return c.size - c.overlap }

// Split returns the chunk texts in order.
func (c *Chunker) Split(text string) []string {
	windows := c.Windows(text)
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = w.Text
	}
	return out
}

// Windows returns the chunks of text with their offsets.
func (c *Chunker) Windows(text string) []Window {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)
	step := c.Step()

	windows := make([]Window, 0, total/max(step, 1)+1)
	for start := 0; start < total; start += step {
		end := min(start+c.size, total)
		windows = append(windows, Window{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})

		// the last window reached the end of text
		if end == total || step <= 0 {
			break
		}
	}
	return windows
}

// Chunk splits text with the given size and overlap. Invalid parameters are
// normalised the same way New does.
func Chunk(text string, size, overlap int) []string {
	return New(WithChunkSize(size), WithOverlap(overlap)).Split(text)
}
