package wasmplugin

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wippyai/ltolink/backend"
)

// Guest exports every plugin must provide.
const (
	exportMemory        = "memory"
	exportAlloc         = "lto_alloc"
	exportFree          = "lto_free"
	exportLoadModule    = "lto_load_module"
	exportDisposeModule = "lto_dispose_module"
	exportLinkModules   = "lto_link_modules"
	exportTargetTriple  = "lto_target_triple"
	exportCodegen       = "lto_codegen"

	// optional
	exportInitialize = "_initialize"
	exportLastError  = "lto_last_error"
)

var requiredFuncs = []string{
	exportAlloc,
	exportFree,
	exportLoadModule,
	exportDisposeModule,
	exportLinkModules,
	exportTargetTriple,
	exportCodegen,
}

// RecordSize is the size in bytes of the configuration record passed to
// lto_codegen.
const RecordSize = 48

// Field offsets within the configuration record. Every field is a
// little-endian 32-bit value.
const (
	offOptLevel   = 0
	offSizeLevel  = 4
	offOutputKind = 8
	offProfile    = 12
	offFilePtr    = 16
	offFileLen    = 20
	offTriplePtr  = 24
	offTripleLen  = 28
	offRelocMode  = 32
	offLTO        = 36
	offDebugInfo  = 40
	offForHost    = 44
)

// guestStrings locates the two strings of a record in guest memory.
type guestStrings struct {
	filePtr, fileLen     uint32
	triplePtr, tripleLen uint32
}

// encodeRecord lays out r as the guest expects it. The file name and triple
// are referenced through s rather than embedded.
func encodeRecord(r backend.Record, s guestStrings) []byte {
	buf := make([]byte, RecordSize)
	put := func(off int, v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
	}
	put(offOptLevel, uint32(r.OptLevel))
	put(offSizeLevel, uint32(r.SizeLevel))
	put(offOutputKind, uint32(r.OutputKind))
	put(offProfile, uint32(r.ShouldProfile))
	put(offFilePtr, s.filePtr)
	put(offFileLen, s.fileLen)
	put(offTriplePtr, s.triplePtr)
	put(offTripleLen, s.tripleLen)
	put(offRelocMode, uint32(r.RelocMode))
	put(offLTO, uint32(r.ShouldPerformLTO))
	put(offDebugInfo, uint32(r.ShouldPreserveDebugInfo))
	put(offForHost, uint32(r.CompilingForHost))
	return buf
}

// decodeRecord reads back the integer fields of an encoded record. The
// string fields are returned as their pointers and lengths.
func decodeRecord(buf []byte) (backend.Record, guestStrings, error) {
	if len(buf) != RecordSize {
		return backend.Record{}, guestStrings{}, fmt.Errorf("record is %d bytes, want %d", len(buf), RecordSize)
	}
	get := func(off int) uint32 {
		return binary.LittleEndian.Uint32(buf[off:])
	}
	r := backend.Record{
		OptLevel:                int32(get(offOptLevel)),
		SizeLevel:               int32(get(offSizeLevel)),
		OutputKind:              int32(get(offOutputKind)),
		ShouldProfile:           int32(get(offProfile)),
		RelocMode:               int32(get(offRelocMode)),
		ShouldPerformLTO:        int32(get(offLTO)),
		ShouldPreserveDebugInfo: int32(get(offDebugInfo)),
		CompilingForHost:        int32(get(offForHost)),
	}
	s := guestStrings{
		filePtr:   get(offFilePtr),
		fileLen:   get(offFileLen),
		triplePtr: get(offTriplePtr),
		tripleLen: get(offTripleLen),
	}
	return r, s, nil
}

// guestPath maps a host path below root to the path the guest sees through
// the WASI mount of root at "/".
func guestPath(root, host string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absHost, err := filepath.Abs(host)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absHost)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the plugin root %s", host, root)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}
