// Copyright 2017, Square, Inc.

package attrtree

import (
	"fmt"
)

var _ error = KeyNotFoundError{}

// KeyNotFoundError is returned by Get for a missing key.
type KeyNotFoundError struct {
	Key string
}

func (e KeyNotFoundError) Error() string {
	return fmt.Sprintf("key not found: %q", e.Key)
}

// --------------------------------------------------------------------------

var _ error = AttributeNotFoundError{}

// AttributeNotFoundError is returned by Attr for a missing dotted path.
type AttributeNotFoundError struct {
	Attribute string
}

func (e AttributeNotFoundError) Error() string {
	return fmt.Sprintf("no attribute %q", e.Attribute)
}

// --------------------------------------------------------------------------

var _ error = MetadataOperationError{}

// MetadataOperationError is an attempt to read or write a metadata toggle
// through the ordinary key path. Toggles are chosen at construction only.
type MetadataOperationError struct {
	Key string
	Op  string
}

func (e MetadataOperationError) Error() string {
	return fmt.Sprintf("cannot %s metadata attribute %s", e.Op, e.Key)
}

// IsNotFound returns true if err is a KeyNotFoundError or an
// AttributeNotFoundError.
func IsNotFound(err error) bool {
	switch err.(type) {
	case KeyNotFoundError, AttributeNotFoundError:
		return true
	}
	return false
}
