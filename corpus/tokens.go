package corpus

// Tokens is a zero-copy view over a range of the memory-mapped token file.
//
// A Tokens value borrows the store's mapping; it must not be used after the
// owning store is closed. Use Materialize to detach a copy.
type Tokens struct {
	data  []byte
	width Width
}

// Len returns the number of tokens in the view.
func (t Tokens) Len() int {
	if t.width == 0 {
		return 0
	}
	return len(t.data) / t.width.Bytes()
}

// At returns the token at position i within the view.
func (t Tokens) At(i int) uint32 {
	return t.width.decode(t.data, i)
}

// Slice returns a sub-view covering [start, end).
func (t Tokens) Slice(start, end int) Tokens {
	w := t.width.Bytes()
	return Tokens{data: t.data[start*w : end*w], width: t.width}
}

// Materialize copies the view into a freshly allocated token slice.
func (t Tokens) Materialize() []uint32 {
	out := make([]uint32, t.Len())
	for i := range out {
		out[i] = t.At(i)
	}
	return out
}

// AppendTo appends the view's tokens to dst and returns the extended slice.
func (t Tokens) AppendTo(dst []uint32) []uint32 {
	n := t.Len()
	for i := 0; i < n; i++ {
		dst = append(dst, t.At(i))
	}
	return dst
}
