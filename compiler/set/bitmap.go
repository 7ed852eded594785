package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a dense set of small non-negative integers.
	// Zero value is an empty set.
	Bitmap struct {
		b []uint64
	}
)

// MakeBitmap returns a set with room for elements below n.
func MakeBitmap(n int) Bitmap {
	return Bitmap{b: make([]uint64, (n+63)/64)}
}

func (s *Bitmap) Set(i int) {
	w := i / 64

	for w >= len(s.b) {
		s.b = append(s.b, 0)
	}

	s.b[w] |= 1 << (i % 64)
}

func (s *Bitmap) Clear(i int) {
	if w := i / 64; w < len(s.b) {
		s.b[w] &^= 1 << (i % 64)
	}
}

func (s *Bitmap) IsSet(i int) bool {
	w := i / 64

	return w < len(s.b) && s.b[w]&(1<<(i%64)) != 0
}

// Or adds all elements of x and reports whether s has changed.
func (s *Bitmap) Or(x Bitmap) (changed bool) {
	for len(s.b) < len(x.b) {
		s.b = append(s.b, 0)
	}

	for i, w := range x.b {
		if s.b[i]|w != s.b[i] {
			s.b[i] |= w
			changed = true
		}
	}

	return changed
}

func (s *Bitmap) Reset() {
	for i := range s.b {
		s.b[i] = 0
	}
}

func (s *Bitmap) Size() (n int) {
	for _, w := range s.b {
		n += bits.OnesCount64(w)
	}

	return n
}

// Range calls f for elements in increasing order until it returns false.
func (s *Bitmap) Range(f func(i int) bool) {
	for i, w := range s.b {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			w &^= 1 << j

			if !f(i*64 + j) {
				return
			}
		}
	}
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	return e.AppendBreak(b)
}
