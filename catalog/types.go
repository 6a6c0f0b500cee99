// Package catalog is the in-memory schema model described in spec.md §3:
// an ordered collection of tables, each with an ordered collection of
// columns, indexed by stable (table, column) positions rather than owning
// pointers, so that the foreign-key graph (which has cycles) serializes
// and deserializes trivially.
package catalog

import "fmt"

// VectorDistanceFunction names a pgvector distance operator, used both by
// a column's default ordering hint and by AbstractOrderBy's
// VectorDistance variant (abstract package).
type VectorDistanceFunction string

const (
	VectorDistanceL2     VectorDistanceFunction = "l2"
	VectorDistanceInner  VectorDistanceFunction = "inner_product"
	VectorDistanceCosine VectorDistanceFunction = "cosine"
)

// DefaultVectorSize is used when a Vector column does not specify a size.
const DefaultVectorSize = 1536

// PhysicalColumnType is the closed set of physical column types spec.md §3
// enumerates. It is a tagged union: Kind discriminates, and only the
// fields relevant to that Kind are meaningful.
type PhysicalColumnType struct {
	Kind PhysicalKind

	// StringLength applies to Kind == String; zero means unbounded.
	StringLength int

	// TimestampTZ applies to Kind == Timestamp.
	TimestampTZ bool

	// BlobBytes applies to Kind == Blob; zero means unbounded.
	BlobBytes int

	// NumericPrecision/NumericScale apply to Kind == Numeric; zero means
	// unspecified (arbitrary precision).
	NumericPrecision int
	NumericScale     int
	// NumericPrecisionSet/NumericScaleSet distinguish "0" from "unset",
	// since 0 is meaningless for precision/scale we use the simpler
	// pointer-free flag and rely on NumericPrecision==0 meaning "no
	// precision constraint" when the flag is false.
	NumericPrecisionSet bool
	NumericScaleSet     bool

	// VectorSize applies to Kind == Vector.
	VectorSize int

	// ArrayInner applies to Kind == Array; nil otherwise.
	ArrayInner *PhysicalColumnType

	// EnumName applies to Kind == Enum.
	EnumName string
}

// PhysicalKind is the tag of PhysicalColumnType.
type PhysicalKind int

const (
	KindInt16 PhysicalKind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBoolean
	KindDate
	KindTime
	KindTimestamp
	KindUUID
	KindJSON
	KindBlob
	KindNumeric
	KindVector
	KindArray
	KindEnum
)

func (k PhysicalKind) String() string {
	switch k {
	case KindInt16:
		return "Int16"
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBoolean:
		return "Boolean"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindTimestamp:
		return "Timestamp"
	case KindUUID:
		return "Uuid"
	case KindJSON:
		return "Json"
	case KindBlob:
		return "Blob"
	case KindNumeric:
		return "Numeric"
	case KindVector:
		return "Vector"
	case KindArray:
		return "Array"
	case KindEnum:
		return "Enum"
	default:
		return fmt.Sprintf("PhysicalKind(%d)", int(k))
	}
}

// Convenience constructors, mirroring the shape of spec.md §3's column type
// enumeration.
func Int32Type() PhysicalColumnType      { return PhysicalColumnType{Kind: KindInt32} }
func Int64Type() PhysicalColumnType      { return PhysicalColumnType{Kind: KindInt64} }
func Int16Type() PhysicalColumnType      { return PhysicalColumnType{Kind: KindInt16} }
func Float32Type() PhysicalColumnType    { return PhysicalColumnType{Kind: KindFloat32} }
func Float64Type() PhysicalColumnType    { return PhysicalColumnType{Kind: KindFloat64} }
func BooleanType() PhysicalColumnType    { return PhysicalColumnType{Kind: KindBoolean} }
func DateType() PhysicalColumnType       { return PhysicalColumnType{Kind: KindDate} }
func TimeType() PhysicalColumnType       { return PhysicalColumnType{Kind: KindTime} }
func UUIDType() PhysicalColumnType       { return PhysicalColumnType{Kind: KindUUID} }
func JSONType() PhysicalColumnType       { return PhysicalColumnType{Kind: KindJSON} }

func StringType(length int) PhysicalColumnType {
	return PhysicalColumnType{Kind: KindString, StringLength: length}
}

func TimestampType(tz bool) PhysicalColumnType {
	return PhysicalColumnType{Kind: KindTimestamp, TimestampTZ: tz}
}

func BlobType(maxBytes int) PhysicalColumnType {
	return PhysicalColumnType{Kind: KindBlob, BlobBytes: maxBytes}
}

// NumericType mirrors postgres-core-builder's DecimalTypeHint: scale
// without precision is invalid, enforced by the caller (builder), not
// here — the catalog just stores what it is given.
func NumericType(precision, scale int, precisionSet, scaleSet bool) PhysicalColumnType {
	return PhysicalColumnType{
		Kind:                KindNumeric,
		NumericPrecision:    precision,
		NumericScale:        scale,
		NumericPrecisionSet: precisionSet,
		NumericScaleSet:     scaleSet,
	}
}

// VectorType mirrors VectorColumnType from the original: a fixed-size
// float vector indexed by pgvector, with a default size when unspecified.
func VectorType(size int) PhysicalColumnType {
	if size <= 0 {
		size = DefaultVectorSize
	}
	return PhysicalColumnType{Kind: KindVector, VectorSize: size}
}

func ArrayType(inner PhysicalColumnType) PhysicalColumnType {
	return PhysicalColumnType{Kind: KindArray, ArrayInner: &inner}
}

func EnumType(name string) PhysicalColumnType {
	return PhysicalColumnType{Kind: KindEnum, EnumName: name}
}
