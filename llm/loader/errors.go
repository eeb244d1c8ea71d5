package loader

import (
	"fmt"
	"path/filepath"
)

// UnsupportedSourceTypeError is returned before any I/O when a file extension
// is outside the supported set.
type UnsupportedSourceTypeError struct {
	Path string
}

func (e *UnsupportedSourceTypeError) Error() string {
	ext := filepath.Ext(e.Path)
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("unsupported source type %s: %s", ext, e.Path)
}

// Ext returns the rejected extension
func (e *UnsupportedSourceTypeError) Ext() string {
	return filepath.Ext(e.Path)
}

// MalformedRecordError is returned when a record file entry lacks a string
// "text" field. Index is -1 when the file itself is not an array of objects.
type MalformedRecordError struct {
	Path   string
	Index  int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed record file %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("malformed record %d in %s: %s", e.Index, e.Path, e.Reason)
}
