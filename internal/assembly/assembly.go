// Package assembly reads the managed identity (logical name, culture,
// version, public key token) embedded in a module file's CLI metadata,
// without loading the module. Only the assembly manifest tables are walked;
// method bodies and signatures are never touched.
package assembly

import (
	"crypto/sha1"
	"debug/pe"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/spf13/afero"
)

// ErrNotManaged marks files that carry no CLI metadata: native libraries,
// resource-only netmodules, or files that are not PE images at all.
var ErrNotManaged = errors.New("not a managed module")

// Read extracts the managed identity of the file at path.
func Read(fsys afero.Fs, path string) (core.ModuleIdentity, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return core.ModuleIdentity{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFrom(f)
}

// ReadFrom extracts the managed identity from an open PE image.
func ReadFrom(r io.ReaderAt) (core.ModuleIdentity, error) {
	pf, err := pe.NewFile(r)
	if err != nil {
		return core.ModuleIdentity{}, fmt.Errorf("%w: %v", ErrNotManaged, err)
	}
	defer pf.Close()

	var dir pe.DataDirectory
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
			return core.ModuleIdentity{}, ErrNotManaged
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
			return core.ModuleIdentity{}, ErrNotManaged
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	default:
		return core.ModuleIdentity{}, ErrNotManaged
	}
	if dir.VirtualAddress == 0 || dir.Size < 16 {
		return core.ModuleIdentity{}, ErrNotManaged
	}

	// IMAGE_COR20_HEADER: the MetaData data directory sits at offset 8.
	cor, err := readRVA(r, pf, dir.VirtualAddress, 16)
	if err != nil {
		return core.ModuleIdentity{}, fmt.Errorf("%w: %v", ErrNotManaged, err)
	}
	metaRVA := binary.LittleEndian.Uint32(cor[8:12])
	metaSize := binary.LittleEndian.Uint32(cor[12:16])
	if metaRVA == 0 || metaSize == 0 {
		return core.ModuleIdentity{}, ErrNotManaged
	}

	md, err := readRVA(r, pf, metaRVA, metaSize)
	if err != nil {
		return core.ModuleIdentity{}, fmt.Errorf("%w: %v", ErrNotManaged, err)
	}

	id, err := parseMetadata(md)
	if err != nil {
		return core.ModuleIdentity{}, err
	}
	return id, nil
}

// readRVA maps a virtual address range to its file offset through the section
// table and reads it.
func readRVA(r io.ReaderAt, pf *pe.File, rva, size uint32) ([]byte, error) {
	for _, s := range pf.Sections {
		if rva >= s.VirtualAddress && rva-s.VirtualAddress+size <= s.Size {
			buf := make([]byte, size)
			off := int64(s.Offset) + int64(rva-s.VirtualAddress)
			if _, err := r.ReadAt(buf, off); err != nil {
				return nil, fmt.Errorf("read rva 0x%x: %w", rva, err)
			}
			return buf, nil
		}
	}
	return nil, fmt.Errorf("rva 0x%x outside mapped sections", rva)
}

const assemblyTable = 0x20

// parseMetadata walks a CLI metadata blob down to the Assembly table row.
func parseMetadata(md []byte) (core.ModuleIdentity, error) {
	const sig = 0x424A5342 // "BSJB"
	if len(md) < 20 || binary.LittleEndian.Uint32(md[0:4]) != sig {
		return core.ModuleIdentity{}, ErrNotManaged
	}
	verLen := binary.LittleEndian.Uint32(md[12:16])
	pos := 16 + int(verLen)
	if pos+4 > len(md) {
		return core.ModuleIdentity{}, ErrNotManaged
	}
	streamCount := int(binary.LittleEndian.Uint16(md[pos+2 : pos+4]))
	pos += 4

	var tables, stringsHeap, blobHeap []byte
	for i := 0; i < streamCount; i++ {
		if pos+8 > len(md) {
			return core.ModuleIdentity{}, ErrNotManaged
		}
		offset := binary.LittleEndian.Uint32(md[pos : pos+4])
		size := binary.LittleEndian.Uint32(md[pos+4 : pos+8])
		pos += 8
		nameStart := pos
		for pos < len(md) && md[pos] != 0 {
			pos++
		}
		name := string(md[nameStart:pos])
		// name is zero-terminated and padded to a 4-byte boundary
		pos = nameStart + (pos-nameStart+4)&^3
		if int(offset)+int(size) > len(md) {
			return core.ModuleIdentity{}, ErrNotManaged
		}
		data := md[offset : offset+size]
		switch name {
		case "#~", "#-":
			tables = data
		case "#Strings":
			stringsHeap = data
		case "#Blob":
			blobHeap = data
		}
	}
	if tables == nil || stringsHeap == nil {
		return core.ModuleIdentity{}, ErrNotManaged
	}
	return parseTables(tables, stringsHeap, blobHeap)
}

// Column kinds for physical row layouts (ECMA-335 II.22). Only the tables
// that precede the Assembly table need a layout so their rows can be skipped.
const (
	colFixed2 = iota
	colFixed4
	colString
	colGUID
	colBlob
	colSimple // index into one table; arg = table id
	colCoded  // coded index; arg = coded group id
)

type column struct {
	kind int
	arg  int
}

// Coded index groups. Membership only matters for computing index width, so
// unused tag slots are simply absent.
var codedGroups = []struct {
	bits   uint
	tables []int
}{
	{2, []int{0x02, 0x01, 0x1B}},             // TypeDefOrRef
	{2, []int{0x04, 0x08, 0x17}},             // HasConstant
	{5, []int{0x06, 0x04, 0x01, 0x02, 0x08, 0x09, 0x0A, 0x00, 0x0E, 0x17, 0x14, 0x11, 0x1A, 0x1B, 0x20, 0x23, 0x26, 0x27, 0x28, 0x2A, 0x2C, 0x2B}}, // HasCustomAttribute
	{1, []int{0x04, 0x08}},                   // HasFieldMarshal
	{2, []int{0x02, 0x06, 0x20}},             // HasDeclSecurity
	{3, []int{0x02, 0x01, 0x1A, 0x06, 0x1B}}, // MemberRefParent
	{1, []int{0x14, 0x17}},                   // HasSemantics
	{1, []int{0x06, 0x0A}},                   // MethodDefOrRef
	{1, []int{0x04, 0x06}},                   // MemberForwarded
	{3, []int{0x06, 0x0A}},                   // CustomAttributeType
	{2, []int{0x00, 0x1A, 0x23, 0x01}},       // ResolutionScope
}

const (
	gTypeDefOrRef = iota
	gHasConstant
	gHasCustomAttribute
	gHasFieldMarshal
	gHasDeclSecurity
	gMemberRefParent
	gHasSemantics
	gMethodDefOrRef
	gMemberForwarded
	gCustomAttributeType
	gResolutionScope
)

var tableLayouts = map[int][]column{
	0x00: {{colFixed2, 0}, {colString, 0}, {colGUID, 0}, {colGUID, 0}, {colGUID, 0}},
	0x01: {{colCoded, gResolutionScope}, {colString, 0}, {colString, 0}},
	0x02: {{colFixed4, 0}, {colString, 0}, {colString, 0}, {colCoded, gTypeDefOrRef}, {colSimple, 0x04}, {colSimple, 0x06}},
	0x03: {{colSimple, 0x04}},
	0x04: {{colFixed2, 0}, {colString, 0}, {colBlob, 0}},
	0x05: {{colSimple, 0x06}},
	0x06: {{colFixed4, 0}, {colFixed2, 0}, {colFixed2, 0}, {colString, 0}, {colBlob, 0}, {colSimple, 0x08}},
	0x07: {{colSimple, 0x08}},
	0x08: {{colFixed2, 0}, {colFixed2, 0}, {colString, 0}},
	0x09: {{colSimple, 0x02}, {colCoded, gTypeDefOrRef}},
	0x0A: {{colCoded, gMemberRefParent}, {colString, 0}, {colBlob, 0}},
	0x0B: {{colFixed2, 0}, {colCoded, gHasConstant}, {colBlob, 0}},
	0x0C: {{colCoded, gHasCustomAttribute}, {colCoded, gCustomAttributeType}, {colBlob, 0}},
	0x0D: {{colCoded, gHasFieldMarshal}, {colBlob, 0}},
	0x0E: {{colFixed2, 0}, {colCoded, gHasDeclSecurity}, {colBlob, 0}},
	0x0F: {{colFixed2, 0}, {colFixed4, 0}, {colSimple, 0x02}},
	0x10: {{colFixed4, 0}, {colSimple, 0x04}},
	0x11: {{colBlob, 0}},
	0x12: {{colSimple, 0x02}, {colSimple, 0x14}},
	0x13: {{colSimple, 0x14}},
	0x14: {{colFixed2, 0}, {colString, 0}, {colCoded, gTypeDefOrRef}},
	0x15: {{colSimple, 0x02}, {colSimple, 0x17}},
	0x16: {{colSimple, 0x17}},
	0x17: {{colFixed2, 0}, {colString, 0}, {colBlob, 0}},
	0x18: {{colFixed2, 0}, {colSimple, 0x06}, {colCoded, gHasSemantics}},
	0x19: {{colSimple, 0x02}, {colCoded, gMethodDefOrRef}, {colCoded, gMethodDefOrRef}},
	0x1A: {{colString, 0}},
	0x1B: {{colBlob, 0}},
	0x1C: {{colFixed2, 0}, {colCoded, gMemberForwarded}, {colString, 0}, {colSimple, 0x1A}},
	0x1D: {{colFixed4, 0}, {colSimple, 0x04}},
	0x1E: {{colFixed4, 0}, {colFixed4, 0}},
	0x1F: {{colFixed4, 0}},
}

// parseTables skips every table preceding the Assembly table and decodes the
// single Assembly row into an identity.
func parseTables(tables, stringsHeap, blobHeap []byte) (core.ModuleIdentity, error) {
	if len(tables) < 24 {
		return core.ModuleIdentity{}, ErrNotManaged
	}
	heapSizes := tables[6]
	valid := binary.LittleEndian.Uint64(tables[8:16])
	if valid&(1<<assemblyTable) == 0 {
		return core.ModuleIdentity{}, ErrNotManaged
	}

	strIdx, guidIdx, blobIdx := 2, 2, 2
	if heapSizes&0x01 != 0 {
		strIdx = 4
	}
	if heapSizes&0x02 != 0 {
		guidIdx = 4
	}
	if heapSizes&0x04 != 0 {
		blobIdx = 4
	}

	rowCounts := make(map[int]uint32)
	pos := 24
	for id := 0; id < 64; id++ {
		if valid&(1<<uint(id)) == 0 {
			continue
		}
		if pos+4 > len(tables) {
			return core.ModuleIdentity{}, ErrNotManaged
		}
		rowCounts[id] = binary.LittleEndian.Uint32(tables[pos : pos+4])
		pos += 4
	}

	simpleIdx := func(table int) int {
		if rowCounts[table] >= 1<<16 {
			return 4
		}
		return 2
	}
	codedIdx := func(group int) int {
		g := codedGroups[group]
		var max uint32
		for _, t := range g.tables {
			if rowCounts[t] > max {
				max = rowCounts[t]
			}
		}
		if max >= 1<<(16-g.bits) {
			return 4
		}
		return 2
	}
	colSize := func(c column) int {
		switch c.kind {
		case colFixed2:
			return 2
		case colFixed4:
			return 4
		case colString:
			return strIdx
		case colGUID:
			return guidIdx
		case colBlob:
			return blobIdx
		case colSimple:
			return simpleIdx(c.arg)
		default:
			return codedIdx(c.arg)
		}
	}

	for id := 0; id < assemblyTable; id++ {
		count := rowCounts[id]
		if count == 0 {
			continue
		}
		layout, ok := tableLayouts[id]
		if !ok {
			return core.ModuleIdentity{}, fmt.Errorf("%w: unknown table 0x%x", ErrNotManaged, id)
		}
		size := 0
		for _, c := range layout {
			size += colSize(c)
		}
		pos += size * int(count)
	}

	// Assembly row: HashAlgId u4, four u2 version parts, Flags u4,
	// PublicKey blob, Name string, Culture string.
	need := 4 + 2*4 + 4 + blobIdx + strIdx + strIdx
	if pos+need > len(tables) {
		return core.ModuleIdentity{}, ErrNotManaged
	}
	row := tables[pos : pos+need]

	major := binary.LittleEndian.Uint16(row[4:6])
	minor := binary.LittleEndian.Uint16(row[6:8])
	build := binary.LittleEndian.Uint16(row[8:10])
	revision := binary.LittleEndian.Uint16(row[10:12])

	p := 16
	pkOff := readIndex(row[p:], blobIdx)
	p += blobIdx
	nameOff := readIndex(row[p:], strIdx)
	p += strIdx
	cultureOff := readIndex(row[p:], strIdx)

	name, err := heapString(stringsHeap, nameOff)
	if err != nil {
		return core.ModuleIdentity{}, err
	}
	if name == "" {
		return core.ModuleIdentity{}, ErrNotManaged
	}
	culture, err := heapString(stringsHeap, cultureOff)
	if err != nil {
		return core.ModuleIdentity{}, err
	}

	ident := core.ModuleIdentity{
		Name:    name,
		Culture: culture,
		Version: fmt.Sprintf("%d.%d.%d.%d", major, minor, build, revision),
	}
	if pk := heapBlob(blobHeap, pkOff); len(pk) > 0 {
		ident.Token = publicKeyToken(pk)
	}
	return ident, nil
}

func readIndex(b []byte, width int) uint32 {
	if width == 4 {
		return binary.LittleEndian.Uint32(b[0:4])
	}
	return uint32(binary.LittleEndian.Uint16(b[0:2]))
}

// heapString reads a zero-terminated UTF-8 string from the #Strings heap.
func heapString(heap []byte, off uint32) (string, error) {
	if int(off) >= len(heap) {
		return "", fmt.Errorf("%w: string offset 0x%x out of heap", ErrNotManaged, off)
	}
	end := int(off)
	for end < len(heap) && heap[end] != 0 {
		end++
	}
	return string(heap[off:end]), nil
}

// heapBlob reads a length-prefixed blob from the #Blob heap. The prefix is
// the compressed-integer encoding of ECMA-335 II.23.2.
func heapBlob(heap []byte, off uint32) []byte {
	if heap == nil || int(off) >= len(heap) {
		return nil
	}
	b := heap[off:]
	var size, skip int
	switch {
	case b[0]&0x80 == 0:
		size, skip = int(b[0]), 1
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return nil
		}
		size, skip = int(b[0]&0x3F)<<8|int(b[1]), 2
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return nil
		}
		size, skip = int(b[0]&0x1F)<<24|int(b[1])<<16|int(b[2])<<8|int(b[3]), 4
	default:
		return nil
	}
	if skip+size > len(b) {
		return nil
	}
	return b[skip : skip+size]
}

// publicKeyToken derives the strong-name token: the low 8 bytes of the SHA-1
// digest of the public key, in reverse order, as lowercase hex.
func publicKeyToken(publicKey []byte) string {
	sum := sha1.Sum(publicKey)
	token := make([]byte, 8)
	for i := 0; i < 8; i++ {
		token[i] = sum[len(sum)-1-i]
	}
	return hex.EncodeToString(token)
}
