package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt reports an archive whose central directory or entry data
	// cannot be parsed.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrInvalidEntryName reports an entry whose stored path cannot be resolved
	// inside the extraction root.
	ErrInvalidEntryName = errors.New("invalid entry name")
	// ErrIO reports a filesystem failure while materialising entries.
	ErrIO = errors.New("archive io")
)

// EntryError ties a failure to a single archive entry.
type EntryError struct {
	Name string
	Kind error
	Err  error
}

func (e *EntryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: entry %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s: entry %q: %v", e.Kind, e.Name, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *EntryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func entryError(kind error, name string, err error) error {
	return &EntryError{Name: name, Kind: kind, Err: err}
}
