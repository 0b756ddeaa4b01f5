package network

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"unsafe"

	"github.com/paulmach/orb"
)

const (
	magicBytes = "RIVERNET"
	version    = uint32(1)
	maxReaches = 50_000_000
	maxFields  = 4096
	maxString  = 1 << 16
)

// fileHeader is the binary snapshot header.
type fileHeader struct {
	Magic      [8]byte
	Version    uint32
	NumReaches uint32
	NumFields  uint32
	Outlet     int32
}

// WriteBinary serializes a processed network to path. The file is written to
// a temporary sibling, CRC32-checked, and renamed into place.
func WriteBinary(path string, n *Network) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	names := n.FieldNames()
	hdr := fileHeader{
		Version:    version,
		NumReaches: uint32(n.Len()),
		NumFields:  uint32(len(names)),
		Outlet:     n.Outlet,
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeString(w, n.RunID); err != nil {
		return fmt.Errorf("write RunID: %w", err)
	}

	c := columnsOf(n)
	for _, col := range []struct {
		name string
		data []int64
	}{
		{"ID", c.id}, {"FromNode", c.from}, {"ToNode", c.to},
	} {
		if err := writeInt64Slice(w, col.data); err != nil {
			return fmt.Errorf("write %s: %w", col.name, err)
		}
	}
	for _, col := range []struct {
		name string
		data []int32
	}{
		{"BranchID", c.branch}, {"ConnectID", c.connect}, {"SegmentID", c.segment}, {"SegmentRank", c.rank},
	} {
		if err := writeInt32Slice(w, col.data); err != nil {
			return fmt.Errorf("write %s: %w", col.name, err)
		}
	}
	for _, col := range []struct {
		name string
		data []float64
	}{
		{"Length", c.length}, {"ElevUp", c.elevUp}, {"ElevDown", c.elevDown},
		{"DrainageArea", c.da}, {"BranchLength", c.branchLen}, {"DownDistance", c.down},
		{"DeltaDA", c.deltaDA}, {"StartX", c.sx}, {"StartY", c.sy}, {"EndX", c.ex}, {"EndY", c.ey},
	} {
		if err := writeFloat64Slice(w, col.data); err != nil {
			return fmt.Errorf("write %s: %w", col.name, err)
		}
	}
	for _, r := range n.Reaches {
		if err := writeString(w, r.Station); err != nil {
			return fmt.Errorf("write Station: %w", err)
		}
	}

	// Attribute columns.
	for _, name := range names {
		if len(n.Fields[name]) != n.Len() {
			return fmt.Errorf("field %s has %d values for %d reaches", name, len(n.Fields[name]), n.Len())
		}
		if err := writeString(w, name); err != nil {
			return fmt.Errorf("write field name: %w", err)
		}
		if err := writeFloat64Slice(w, n.Fields[name]); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}

	// Geometry (length-prefixed for variable-size arrays).
	if err := writeLenPrefixedUint32(w, c.geoFirstOut); err != nil {
		return fmt.Errorf("write GeoFirstOut: %w", err)
	}
	if err := writeLenPrefixedFloat64(w, c.geoX); err != nil {
		return fmt.Errorf("write GeoX: %w", err)
	}
	if err := writeLenPrefixedFloat64(w, c.geoY); err != nil {
		return fmt.Errorf("write GeoY: %w", err)
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBinary loads a snapshot written by WriteBinary and rebuilds adjacency.
func ReadBinary(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumReaches > maxReaches {
		return nil, fmt.Errorf("NumReaches %d exceeds limit %d", hdr.NumReaches, maxReaches)
	}
	if hdr.NumFields > maxFields {
		return nil, fmt.Errorf("NumFields %d exceeds limit %d", hdr.NumFields, maxFields)
	}
	num := int(hdr.NumReaches)
	if hdr.Outlet < -1 || int(hdr.Outlet) >= max(num, 1) {
		return nil, fmt.Errorf("outlet index %d out of range", hdr.Outlet)
	}

	runID, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read RunID: %w", err)
	}

	var c columns
	for _, col := range []struct {
		name string
		dst  *[]int64
	}{
		{"ID", &c.id}, {"FromNode", &c.from}, {"ToNode", &c.to},
	} {
		if *col.dst, err = readInt64Slice(r, num); err != nil {
			return nil, fmt.Errorf("read %s: %w", col.name, err)
		}
	}
	for _, col := range []struct {
		name string
		dst  *[]int32
	}{
		{"BranchID", &c.branch}, {"ConnectID", &c.connect}, {"SegmentID", &c.segment}, {"SegmentRank", &c.rank},
	} {
		if *col.dst, err = readInt32Slice(r, num); err != nil {
			return nil, fmt.Errorf("read %s: %w", col.name, err)
		}
	}
	for _, col := range []struct {
		name string
		dst  *[]float64
	}{
		{"Length", &c.length}, {"ElevUp", &c.elevUp}, {"ElevDown", &c.elevDown},
		{"DrainageArea", &c.da}, {"BranchLength", &c.branchLen}, {"DownDistance", &c.down},
		{"DeltaDA", &c.deltaDA}, {"StartX", &c.sx}, {"StartY", &c.sy}, {"EndX", &c.ex}, {"EndY", &c.ey},
	} {
		if *col.dst, err = readFloat64Slice(r, num); err != nil {
			return nil, fmt.Errorf("read %s: %w", col.name, err)
		}
	}
	c.station = make([]string, num)
	for i := range c.station {
		if c.station[i], err = readString(r); err != nil {
			return nil, fmt.Errorf("read Station: %w", err)
		}
	}

	fields := make(map[string][]float64, hdr.NumFields)
	for range hdr.NumFields {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read field name: %w", err)
		}
		col, err := readFloat64Slice(r, num)
		if err != nil {
			return nil, fmt.Errorf("read field %s: %w", name, err)
		}
		if col == nil {
			col = []float64{}
		}
		fields[name] = col
	}

	if c.geoFirstOut, err = readLenPrefixedUint32(r); err != nil {
		return nil, fmt.Errorf("read GeoFirstOut: %w", err)
	}
	if c.geoX, err = readLenPrefixedFloat64(r); err != nil {
		return nil, fmt.Errorf("read GeoX: %w", err)
	}
	if c.geoY, err = readLenPrefixedFloat64(r); err != nil {
		return nil, fmt.Errorf("read GeoY: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := validateGeometry(c.geoFirstOut, len(c.geoX), len(c.geoY), num); err != nil {
		return nil, fmt.Errorf("geometry invalid: %w", err)
	}

	n := &Network{
		Reaches: c.reaches(),
		Fields:  fields,
		Outlet:  hdr.Outlet,
		RunID:   runID,
	}
	for i := 1; i < len(n.Reaches); i++ {
		if n.Reaches[i].ID <= n.Reaches[i-1].ID {
			return nil, fmt.Errorf("reach ids not strictly ascending at index %d", i)
		}
	}
	n.reindex()
	return n, nil
}

// columns is the struct-of-arrays form of a reach slice used on disk.
type columns struct {
	id, from, to                   []int64
	branch, connect, segment, rank []int32
	length, elevUp, elevDown, da   []float64
	branchLen, down, deltaDA       []float64
	sx, sy, ex, ey                 []float64
	station                        []string
	geoFirstOut                    []uint32
	geoX, geoY                     []float64
}

func columnsOf(n *Network) columns {
	num := n.Len()
	c := columns{
		id: make([]int64, num), from: make([]int64, num), to: make([]int64, num),
		branch: make([]int32, num), connect: make([]int32, num),
		segment: make([]int32, num), rank: make([]int32, num),
		length: make([]float64, num), elevUp: make([]float64, num), elevDown: make([]float64, num),
		da: make([]float64, num), branchLen: make([]float64, num), down: make([]float64, num),
		deltaDA: make([]float64, num),
		sx:      make([]float64, num), sy: make([]float64, num), ex: make([]float64, num), ey: make([]float64, num),
		geoFirstOut: make([]uint32, num+1),
	}
	for i, r := range n.Reaches {
		c.id[i], c.from[i], c.to[i] = r.ID, int64(r.FromNode), int64(r.ToNode)
		c.branch[i], c.connect[i], c.segment[i], c.rank[i] = r.BranchID, r.ConnectID, r.SegmentID, r.SegmentRank
		c.length[i], c.elevUp[i], c.elevDown[i], c.da[i] = r.Length, r.ElevUp, r.ElevDown, r.DrainageArea
		c.branchLen[i], c.down[i], c.deltaDA[i] = r.BranchLength, r.DownDistance, r.DeltaDA
		c.sx[i], c.sy[i], c.ex[i], c.ey[i] = r.Start[0], r.Start[1], r.End[0], r.End[1]
		c.geoFirstOut[i] = uint32(len(c.geoX))
		for _, p := range r.Geometry {
			c.geoX = append(c.geoX, p[0])
			c.geoY = append(c.geoY, p[1])
		}
	}
	c.geoFirstOut[num] = uint32(len(c.geoX))
	return c
}

func (c columns) reaches() []Reach {
	rs := make([]Reach, len(c.id))
	for i := range rs {
		rs[i] = Reach{
			ID: c.id[i], FromNode: NodeID(c.from[i]), ToNode: NodeID(c.to[i]),
			Start: orb.Point{c.sx[i], c.sy[i]}, End: orb.Point{c.ex[i], c.ey[i]},
			Length: c.length[i], ElevUp: c.elevUp[i], ElevDown: c.elevDown[i], DrainageArea: c.da[i],
			Station:  c.station[i],
			BranchID: c.branch[i], ConnectID: c.connect[i], BranchLength: c.branchLen[i],
			DownDistance: c.down[i], SegmentID: c.segment[i], SegmentRank: c.rank[i], DeltaDA: c.deltaDA[i],
		}
		if c.geoFirstOut != nil {
			lo, hi := c.geoFirstOut[i], c.geoFirstOut[i+1]
			if hi > lo {
				ls := make(orb.LineString, 0, hi-lo)
				for k := lo; k < hi; k++ {
					ls = append(ls, orb.Point{c.geoX[k], c.geoY[k]})
				}
				rs[i].Geometry = ls
			}
		}
	}
	return rs
}

// validateGeometry checks the flattened polyline offsets.
func validateGeometry(firstOut []uint32, nx, ny, numReaches int) error {
	if firstOut == nil {
		return nil
	}
	if len(firstOut) != numReaches+1 {
		return fmt.Errorf("GeoFirstOut length %d != NumReaches+1 %d", len(firstOut), numReaches+1)
	}
	if nx != ny {
		return fmt.Errorf("GeoX length %d != GeoY length %d", nx, ny)
	}
	for i := 1; i < len(firstOut); i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("GeoFirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	if int(firstOut[numReaches]) != nx {
		return fmt.Errorf("GeoFirstOut[NumReaches]=%d != %d points", firstOut[numReaches], nx)
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeInt64Slice(w io.Writer, s []int64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readInt64Slice(r io.Reader, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, n int) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func writeLenPrefixedUint32(w io.Writer, s []uint32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	return writeUint32Slice(w, s)
}

func writeLenPrefixedFloat64(w io.Writer, s []float64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	return writeFloat64Slice(w, s)
}

func readLenPrefixedUint32(r io.Reader) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > math.MaxUint32/4 || n > maxReaches+1 {
		return nil, fmt.Errorf("length %d exceeds limit", n)
	}
	return readUint32Slice(r, int(n))
}

func readLenPrefixedFloat64(r io.Reader) ([]float64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > math.MaxUint32/8 {
		return nil, fmt.Errorf("length %d exceeds limit", n)
	}
	return readFloat64Slice(r, int(n))
}

func writeString(w io.Writer, s string) error {
	if len(s) > maxString {
		return fmt.Errorf("string of %d bytes exceeds limit %d", len(s), maxString)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxString {
		return "", fmt.Errorf("string length %d exceeds limit %d", n, maxString)
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
