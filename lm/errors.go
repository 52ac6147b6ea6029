package lm

import "fmt"

// TruncatedError is returned when the byte stream ends before a
// declared section is complete.
type TruncatedError struct {
	Section string
	Offset  int
	Size    int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("lm: truncated %s section (offset %d, size %d)", e.Section, e.Offset, e.Size)
}

// VersionError is returned for unrecognized version or format tags.
type VersionError struct {
	What    string
	Version uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("lm: unsupported %s 0x%x", e.What, e.Version)
}

// IndexError is returned when a bone or skinning index references a
// nonexistent element. Index and Bound let the caller locate the
// corrupt record.
type IndexError struct {
	What  string
	Index int
	Bound int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("lm: %s index %d out of range (bound %d)", e.What, e.Index, e.Bound)
}

// InvariantError is returned when a structure violates a constraint
// the engine depends on (bone ordering, track shape, weight sums).
// The encoder refuses to emit such files.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "lm: " + e.Reason
}
