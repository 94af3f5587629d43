package mvcc

// PhysicalType is the closed set of storage-level types the filter kernel
// and column data specialize over, distinct from the logical SQL types
// callers see at the boundary.
type PhysicalType int

const (
	PhysicalInt8 PhysicalType = iota
	PhysicalInt16
	PhysicalInt32
	PhysicalInt64
	PhysicalFloat32
	PhysicalFloat64
	PhysicalVarchar
)

// TypeSize returns the fixed width in bytes of t, or -1 for the variable
// width Varchar.
func (t PhysicalType) TypeSize() int {
	switch t {
	case PhysicalInt8:
		return 1
	case PhysicalInt16:
		return 2
	case PhysicalInt32, PhysicalFloat32:
		return 4
	case PhysicalInt64, PhysicalFloat64:
		return 8
	case PhysicalVarchar:
		return -1
	default:
		return -1
	}
}

// Vector is a columnar batch of at most StandardVectorSize values of one
// physical type, with an optional null bitmap. Only one of the typed slices
// is populated, matching typ.
type Vector struct {
	typ PhysicalType

	int8s    []int8
	int16s   []int16
	int32s   []int32
	int64s   []int64
	float32s []float32
	float64s []float64
	strs     []string

	nulls []bool
}

// NewVector allocates a Vector of the given type and length, with no values
// considered null.
func NewVector(typ PhysicalType, length int) *Vector {
	v := &Vector{typ: typ, nulls: make([]bool, length)}
	switch typ {
	case PhysicalInt8:
		v.int8s = make([]int8, length)
	case PhysicalInt16:
		v.int16s = make([]int16, length)
	case PhysicalInt32:
		v.int32s = make([]int32, length)
	case PhysicalInt64:
		v.int64s = make([]int64, length)
	case PhysicalFloat32:
		v.float32s = make([]float32, length)
	case PhysicalFloat64:
		v.float64s = make([]float64, length)
	case PhysicalVarchar:
		v.strs = make([]string, length)
	}
	return v
}

func (v *Vector) PhysicalType() PhysicalType { return v.typ }
func (v *Vector) Length() int                { return len(v.nulls) }
func (v *Vector) IsNull(i int) bool          { return v.nulls[i] }
func (v *Vector) SetNull(i int, null bool)   { v.nulls[i] = null }

// copyInto overwrites position dst of v with position src of src, including
// its null flag. Both vectors must share a physical type.
func (v *Vector) copyInto(dst int, src *Vector, srcIdx int) {
	v.nulls[dst] = src.nulls[srcIdx]
	switch v.typ {
	case PhysicalInt8:
		v.int8s[dst] = src.int8s[srcIdx]
	case PhysicalInt16:
		v.int16s[dst] = src.int16s[srcIdx]
	case PhysicalInt32:
		v.int32s[dst] = src.int32s[srcIdx]
	case PhysicalInt64:
		v.int64s[dst] = src.int64s[srcIdx]
	case PhysicalFloat32:
		v.float32s[dst] = src.float32s[srcIdx]
	case PhysicalFloat64:
		v.float64s[dst] = src.float64s[srcIdx]
	case PhysicalVarchar:
		v.strs[dst] = src.strs[srcIdx]
	}
}

// insertAt inserts position srcIdx of src into v at position dst, growing
// every backing slice by one element.
func (v *Vector) insertAt(dst int, src *Vector, srcIdx int) {
	v.nulls = append(v.nulls, false)
	copy(v.nulls[dst+1:], v.nulls[dst:])
	v.nulls[dst] = src.nulls[srcIdx]

	switch v.typ {
	case PhysicalInt8:
		v.int8s = append(v.int8s, 0)
		copy(v.int8s[dst+1:], v.int8s[dst:])
		v.int8s[dst] = src.int8s[srcIdx]
	case PhysicalInt16:
		v.int16s = append(v.int16s, 0)
		copy(v.int16s[dst+1:], v.int16s[dst:])
		v.int16s[dst] = src.int16s[srcIdx]
	case PhysicalInt32:
		v.int32s = append(v.int32s, 0)
		copy(v.int32s[dst+1:], v.int32s[dst:])
		v.int32s[dst] = src.int32s[srcIdx]
	case PhysicalInt64:
		v.int64s = append(v.int64s, 0)
		copy(v.int64s[dst+1:], v.int64s[dst:])
		v.int64s[dst] = src.int64s[srcIdx]
	case PhysicalFloat32:
		v.float32s = append(v.float32s, 0)
		copy(v.float32s[dst+1:], v.float32s[dst:])
		v.float32s[dst] = src.float32s[srcIdx]
	case PhysicalFloat64:
		v.float64s = append(v.float64s, 0)
		copy(v.float64s[dst+1:], v.float64s[dst:])
		v.float64s[dst] = src.float64s[srcIdx]
	case PhysicalVarchar:
		v.strs = append(v.strs, "")
		copy(v.strs[dst+1:], v.strs[dst:])
		v.strs[dst] = src.strs[srcIdx]
	}
}

// ColumnData is the base (oldest-committed) storage for one vector-sized
// slab of a column, independent of any update chain layered on top of it.
type ColumnData interface {
	PhysicalType() PhysicalType
	// FetchBaseData copies this slab's values at offsets [start, end) into
	// result, overwriting positions from result offset resultOffset on.
	FetchBaseData(result *Vector, resultOffset, start, end int)
	// Length returns the number of values this slab holds.
	Length() int
}

// inMemoryColumnData is the default ColumnData: a single resident Vector,
// used by tests and by any BufferManager caller that hasn't paged the block
// out. Production storage would instead decode lazily from a BufferHandle.
type inMemoryColumnData struct {
	data *Vector
}

// NewInMemoryColumnData wraps data as a ColumnData backed entirely by
// memory.
func NewInMemoryColumnData(data *Vector) ColumnData {
	return &inMemoryColumnData{data: data}
}

func (c *inMemoryColumnData) PhysicalType() PhysicalType { return c.data.typ }
func (c *inMemoryColumnData) Length() int                { return c.data.Length() }

func (c *inMemoryColumnData) FetchBaseData(result *Vector, resultOffset, start, end int) {
	for i := start; i < end; i++ {
		result.copyInto(resultOffset+(i-start), c.data, i)
	}
}
