package library

import (
	"strings"

	"github.com/wippyai/ltolink/errors"
)

const (
	// StdlibName is the reserved unique name of the standard library.
	StdlibName = "stdlib"
	// EntrySuffix marks the standard library's program-entry blob.
	EntrySuffix = "program.kt.bc"
)

// Resolution is the outcome of resolving the link set.
type Resolution struct {
	// StdlibEntry is the path of the standard library's program-entry blob.
	StdlibEntry string
	// LinkInputs holds every blob of every other library, in descriptor
	// order and then blob order.
	LinkInputs []string
}

// Resolver selects the standard library among a set of descriptors.
// The zero value uses StdlibName and EntrySuffix.
type Resolver struct {
	StdlibName  string
	EntrySuffix string
}

func (r Resolver) stdlibName() string {
	if r.StdlibName != "" {
		return r.StdlibName
	}
	return StdlibName
}

func (r Resolver) entrySuffix() string {
	if r.EntrySuffix != "" {
		return r.EntrySuffix
	}
	return EntrySuffix
}

// Resolve locates exactly one standard library descriptor and its entry
// blob, and flattens the blobs of all other descriptors.
func (r Resolver) Resolve(libs []Descriptor) (*Resolution, error) {
	name := r.stdlibName()

	var stdlib Descriptor
	matches := 0
	others := make([]string, 0, len(libs))
	for _, lib := range libs {
		if lib.UniqueName() == name {
			stdlib = lib
			matches++
			continue
		}
		others = append(others, lib.BitcodePaths()...)
	}

	switch {
	case matches == 0:
		return nil, errors.StdlibMissing(name)
	case matches > 1:
		return nil, errors.StdlibAmbiguous(name, matches)
	}

	suffix := r.entrySuffix()
	for _, p := range stdlib.BitcodePaths() {
		if strings.HasSuffix(p, suffix) {
			return &Resolution{StdlibEntry: p, LinkInputs: others}, nil
		}
	}

	return nil, errors.EntryMissing(name, suffix)
}

// Resolve resolves libs with the default Resolver.
func Resolve(libs []Descriptor) (*Resolution, error) {
	return Resolver{}.Resolve(libs)
}
