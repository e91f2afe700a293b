package jansson

// DecodingFlags control json_loadb.
type DecodingFlags uint

const (
	RejectDuplicates DecodingFlags = 0x1
	DisableEOFCheck  DecodingFlags = 0x2
	DecodeAny        DecodingFlags = 0x4
	DecodeIntAsReal  DecodingFlags = 0x8
	AllowNUL         DecodingFlags = 0x10
)

// EncodingFlags control json_dumps.
type EncodingFlags uint

const (
	Compact       EncodingFlags = 0x20
	EnsureASCII   EncodingFlags = 0x40
	SortKeys      EncodingFlags = 0x80
	PreserveOrder EncodingFlags = 0x100
	EncodeAny     EncodingFlags = 0x200
	EscapeSlash   EncodingFlags = 0x400
	Embed         EncodingFlags = 0x10000
)

// Indent pretty-prints with n spaces. Only the low five bits are kept.
func Indent(n int) EncodingFlags {
	return EncodingFlags(n & 0x1F)
}

// RealPrecision limits reals to n significant digits. Only the low five bits are kept.
func RealPrecision(n int) EncodingFlags {
	return EncodingFlags((n & 0x1F) << 11)
}

// Type is the kind of a JSON value.
type Type int

const (
	TypeObject Type = iota
	TypeArray
	TypeString
	TypeInteger
	TypeReal
	TypeTrue
	TypeFalse
	TypeNull
)

var typeNames = [...]string{"object", "array", "string", "integer", "real", "true", "false", "null"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}
