// Package library models the compiled libraries taking part in a link and
// selects the standard library's program-entry module among them.
package library

// Descriptor is a read-only view of one compiled library.
type Descriptor interface {
	// UniqueName is the library's unique name within the compilation.
	UniqueName() string
	// BitcodePaths returns the library's IR blob paths in library order.
	BitcodePaths() []string
}

// Library is a plain Descriptor value.
type Library struct {
	Name    string
	Bitcode []string
}

// New creates a Library descriptor.
func New(name string, bitcode ...string) Library {
	return Library{Name: name, Bitcode: bitcode}
}

func (l Library) UniqueName() string {
	return l.Name
}

func (l Library) BitcodePaths() []string {
	return l.Bitcode
}
