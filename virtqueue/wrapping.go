package virtqueue

// Ring cursors and the EVENT_IDX comparisons are defined over u16
// arithmetic that wraps modulo 2^16 (Rust's Wrapping<u16>). Go's
// unsigned integer subtraction already wraps the same way, so no
// wrapper type is needed — but every comparison below is spelled out
// with plain uint16 operands on purpose, never widened to int or
// uint32, since promoting to a wider type before subtracting would
// silently break the windowing the EVENT_IDX test depends on.

// wrapDiff returns a-b computed over wrapped uint16 arithmetic.
func wrapDiff(a, b uint16) uint16 {
	return a - b
}
