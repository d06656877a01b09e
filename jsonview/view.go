package jsonview

import "bytes"

// Root returns the index of the document's outermost token.
func (v *View) Root() int { return 0 }

// Len reports the number of tokens produced by tokenization.
func (v *View) Len() int { return len(v.tokens) }

// Type returns the token type at idx.
func (v *View) Type(idx int) TokenType { return v.tokens[idx].Type }

// TokenRange returns the (start, end) byte offsets of the token at idx.
func (v *View) TokenRange(idx int) (int, int) {
	t := v.tokens[idx]
	return t.Start, t.End
}

// Text returns the raw bytes spanned by the token at idx, aliasing the
// source buffer. Callers must not mutate the result.
func (v *View) Text(idx int) []byte {
	t := v.tokens[idx]
	return v.src[t.Start:t.End]
}

// Parent returns the index of the token enclosing idx, or -1 for the root.
func (v *View) Parent(idx int) int { return v.tokens[idx].Parent }

// Size returns the raw child count recorded for idx (pair-counted for
// objects, element-counted for arrays, zero for leaves).
func (v *View) Size(idx int) int { return v.tokens[idx].Size }

// ArraySize returns the number of elements in the array token at idx, or 0
// if idx is not an array.
func (v *View) ArraySize(idx int) int {
	if v.tokens[idx].Type != TokenArray {
		return 0
	}
	return v.tokens[idx].Size
}

// Children returns the indices of every token directly parented to idx, in
// document order. For an object this alternates key, value, key, value; for
// an array it is simply the elements.
func (v *View) Children(idx int) []int {
	var out []int
	for i := idx + 1; i < len(v.tokens); i++ {
		if v.tokens[i].Parent == idx {
			out = append(out, i)
		}
	}
	return out
}

// ArrayMember returns the index of the i-th element of the array token at
// idx (zero-based). ok is false if idx is not an array or i is out of range.
func (v *View) ArrayMember(idx, i int) (int, bool) {
	if v.tokens[idx].Type != TokenArray || i < 0 {
		return 0, false
	}
	n := 0
	for _, child := range v.Children(idx) {
		if n == i {
			return child, true
		}
		n++
	}
	return 0, false
}

// FindKey looks up key among the immediate members of the object token at
// idx and returns the index of its associated value token. Comparison is
// exact (case-sensitive) byte equality against the key text, matching JSON
// object-key semantics; key order carries no meaning (unlike the source's
// positional token scan — see DESIGN.md).
func (v *View) FindKey(idx int, key string) (int, bool) {
	if v.tokens[idx].Type != TokenObject {
		return 0, false
	}
	children := v.Children(idx)
	needle := []byte(key)
	for i := 0; i+1 < len(children); i += 2 {
		keyIdx, valIdx := children[i], children[i+1]
		if bytes.Equal(v.Text(keyIdx), needle) {
			return valIdx, true
		}
	}
	return 0, false
}

// Is reports whether the token at idx has exactly the given text, compared
// byte-for-byte (case-sensitive).
func (v *View) Is(idx int, s string) bool {
	return bytes.Equal(v.Text(idx), []byte(s))
}

// IsFold reports whether the token at idx case-insensitively equals s.
func (v *View) IsFold(idx int, s string) bool {
	return bytes.EqualFold(v.Text(idx), []byte(s))
}
