package content

import (
	"strings"

	"github.com/italolelis/resumable_downloader/internal/transfer"
)

const maxNameLength = 255

// ValidateName reports whether name is safe to use as a published file name.
// Names are plain base names; hidden names are reserved for the store itself.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &transfer.InvalidArgumentError{Field: "name", Reason: "must not be empty"}
	case len(name) > maxNameLength:
		return &transfer.InvalidArgumentError{Field: "name", Reason: "must be at most 255 bytes"}
	case strings.ContainsAny(name, `/\`):
		return &transfer.InvalidArgumentError{Field: "name", Reason: "must not contain path separators"}
	case strings.HasPrefix(name, "."):
		return &transfer.InvalidArgumentError{Field: "name", Reason: "must not start with a dot"}
	case strings.ContainsRune(name, 0):
		return &transfer.InvalidArgumentError{Field: "name", Reason: "must not contain NUL bytes"}
	}

	return nil
}
