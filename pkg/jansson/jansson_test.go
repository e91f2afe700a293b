package jansson

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sample = `{"a": "alpha", "b": true, "c": false, "d": 42, "e": 1.25, "f": null, "g": [1, 2, 3]}`

func mustLoad(t *testing.T, text string, flags DecodingFlags) *Value {
	t.Helper()
	v, err := Loads(text, flags)
	if err != nil {
		t.Fatalf("Loads(%q) failed: %v", text, err)
	}
	t.Cleanup(v.Release)
	return v
}

func TestRoundTrip(t *testing.T) {
	v := mustLoad(t, sample, 0)
	out, err := v.Dumps(0)
	if err != nil {
		t.Fatalf("Dumps failed: %v", err)
	}
	if out != sample {
		t.Errorf("Round trip mismatch:\n got: %s\nwant: %s", out, sample)
	}
}

func TestRoundTripEveryKind(t *testing.T) {
	values := map[string]*Value{
		"null":         Null(),
		"true":         Bool(true),
		"false":        Bool(false),
		"integer":      Integer(-42),
		"max integer":  Integer(math.MaxInt64),
		"real":         Real(0.1),
		"tiny real":    Real(-2.5e-300),
		"string":       String("h\u00e9llo \u2603 \U0001F600 \"q\" / \\"),
		"empty string": String(""),
		"nul string":   String("a\x00b"),
		"empty array":  Array(),
		"empty object": Object(),
		"nested": mustLoad(t, `{"b": [1, 2.5, "x", null, true, false, [], {}],
			"a": {"deep": {"deeper": [[{"k": "\u00fc"}]]}}, "": "empty key"}`, 0).Clone(),
	}
	flagSets := map[string]EncodingFlags{
		"default":      0,
		"compact":      Compact,
		"sorted":       SortKeys,
		"ascii":        EnsureASCII,
		"all":          Compact | SortKeys | EnsureASCII,
		"indent slash": Indent(2) | EscapeSlash,
	}

	for name, v := range values {
		t.Cleanup(v.Release)
		for flagName, flags := range flagSets {
			text, err := v.Dumps(flags | EncodeAny)
			if err != nil {
				t.Errorf("%s/%s: Dumps failed: %v", name, flagName, err)
				continue
			}
			back, err := Loads(text, DecodeAny|AllowNUL)
			if err != nil {
				t.Errorf("%s/%s: Loads(%q) failed: %v", name, flagName, text, err)
				continue
			}
			if !back.Equal(v) || back.Type() != v.Type() {
				t.Errorf("%s/%s: %s decoded to a different value %s", name, flagName, text, back)
			}
			back.Release()
		}
	}
}

func TestKeysKeepNUL(t *testing.T) {
	if !keysHoldNUL() {
		t.Skip("this Jansson release refuses NUL in object keys")
	}
	v := mustLoad(t, `{"a\u0000b": 1, "a": 2}`, AllowNUL)

	keys := v.Keys()
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"a", "a\x00b"}, keys); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	var ranged []string
	v.Range(func(key string, _ *Value) bool {
		ranged = append(ranged, key)
		return true
	})
	sort.Strings(ranged)
	if diff := cmp.Diff(keys, ranged); diff != "" {
		t.Errorf("range keys (-want +got):\n%s", diff)
	}

	member, ok := v.Get("a\x00b")
	if !ok {
		t.Fatal("Expected the NUL key to be found")
	}
	defer member.Release()
	if n, _ := member.IntValue(); n != 1 {
		t.Errorf("Expected 1 under the NUL key, got %d", n)
	}

	three := Integer(3)
	defer three.Release()
	if err := v.Set("x\x00y", three); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := v.Del("a\x00b"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, ok := v.Get("a\x00b"); ok || v.Len() != 2 {
		t.Errorf("Unexpected object after Del: %s", v)
	}
}

func TestDecodeError(t *testing.T) {
	_, err := Loads(`{"a":`, 0)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected *DecodeError, got %v", err)
	}
	if decErr.Text == "" || decErr.Line != 1 {
		t.Errorf("Expected position information, got %+v", decErr)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := LoadBytes(nil, 0); err == nil {
		t.Fatal("Expected an error for empty input")
	}
}

func TestDecodeAnyAndAllowNUL(t *testing.T) {
	if _, err := Loads(`"bare"`, 0); err == nil {
		t.Fatal("Expected a bare string to be rejected without DecodeAny")
	}
	v := mustLoad(t, `"a\u0000b"`, DecodeAny|AllowNUL)
	s, ok := v.StringValue()
	if !ok || s != "a\x00b" || v.Len() != 3 {
		t.Errorf("Expected embedded NUL to survive, got %q (len %d)", s, v.Len())
	}
}

func TestRejectDuplicates(t *testing.T) {
	if _, err := Loads(`{"k": 1, "k": 2}`, RejectDuplicates); err == nil {
		t.Fatal("Expected duplicate keys to be rejected")
	}
}

func TestAccessors(t *testing.T) {
	v := mustLoad(t, sample, 0)

	if v.Type() != TypeObject || v.Len() != 7 {
		t.Fatalf("Expected an object of 7 members, got %s with %d", v.Type(), v.Len())
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e", "f", "g"}, v.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	a, _ := v.Get("a")
	defer a.Release()
	if s, ok := a.StringValue(); !ok || s != "alpha" {
		t.Errorf("Expected alpha, got %q", s)
	}

	d, _ := v.Get("d")
	defer d.Release()
	if n, ok := d.IntValue(); !ok || n != 42 {
		t.Errorf("Expected 42, got %d", n)
	}
	if f, ok := d.NumberValue(); !ok || f != 42 {
		t.Errorf("Expected 42 as number, got %v", f)
	}

	e, _ := v.Get("e")
	defer e.Release()
	if f, ok := e.RealValue(); !ok || f != 1.25 {
		t.Errorf("Expected 1.25, got %v", f)
	}

	b, _ := v.Get("b")
	defer b.Release()
	if val, ok := b.BoolValue(); !ok || !val {
		t.Error("Expected true")
	}

	if _, ok := v.Get("missing"); ok {
		t.Error("Expected missing key to be absent")
	}
	if _, ok := a.IntValue(); ok {
		t.Error("A string must not read as an integer")
	}
}

func TestGetRetains(t *testing.T) {
	v := mustLoad(t, sample, 0)
	g, _ := v.Get("g")
	if g.RefCount() != 2 {
		t.Errorf("Expected the member shared by object and wrapper, got %d", g.RefCount())
	}
	g.Release()
}

func TestSetAndArrays(t *testing.T) {
	obj := Object()
	defer obj.Release()

	arr := Array()
	defer arr.Release()
	for _, n := range []int64{1, 3} {
		item := Integer(n)
		if err := arr.Append(item); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		item.Release()
	}
	two := Integer(2)
	if err := arr.Insert(1, two); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	two.Release()

	if err := obj.Set("list", arr); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if arr.RefCount() != 2 {
		t.Errorf("Expected the object to hold its own reference, got %d", arr.RefCount())
	}

	out, _ := obj.Dumps(Compact)
	if out != `{"list":[1,2,3]}` {
		t.Errorf("Unexpected encoding %s", out)
	}

	if err := arr.Remove(0); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := arr.Remove(10); !errors.Is(err, ErrOperation) {
		t.Errorf("Expected ErrOperation removing out of range, got %v", err)
	}
	first, ok := arr.At(0)
	if !ok {
		t.Fatal("Expected an element at 0")
	}
	defer first.Release()
	if n, _ := first.IntValue(); n != 2 {
		t.Errorf("Expected 2 after removal, got %d", n)
	}

	if err := obj.Del("list"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if err := obj.Del("list"); !errors.Is(err, ErrOperation) {
		t.Errorf("Expected ErrOperation deleting twice, got %v", err)
	}
}

func TestRangeStops(t *testing.T) {
	v := mustLoad(t, sample, 0)
	var seen []string
	v.Range(func(key string, member *Value) bool {
		seen = append(seen, key+":"+member.Type().String())
		return len(seen) < 2
	})
	if diff := cmp.Diff([]string{"a:string", "b:true"}, seen); diff != "" {
		t.Errorf("Range mismatch (-want +got):\n%s", diff)
	}
}

func TestEqualAndCopies(t *testing.T) {
	v := mustLoad(t, sample, 0)
	deep := v.DeepCopy()
	defer deep.Release()
	shallow := v.Copy()
	defer shallow.Release()

	if !v.Equal(deep) || !v.Equal(shallow) {
		t.Fatal("Expected copies to be equal")
	}

	extra := Null()
	_ = deep.Set("h", extra)
	extra.Release()
	if v.Equal(deep) {
		t.Error("Deep copy must not share members with the original")
	}
}

func TestEncodingFlags(t *testing.T) {
	v := mustLoad(t, `{"b": 1, "a": "x/y"}`, 0)

	out, _ := v.Dumps(Compact | SortKeys | EscapeSlash)
	if out != `{"a":"x\/y","b":1}` {
		t.Errorf("Unexpected encoding %s", out)
	}
	if Indent(33) != 1 {
		t.Errorf("Indent must keep the low five bits, got %#x", uint(Indent(33)))
	}
	if RealPrecision(3) != 3<<11 {
		t.Errorf("Unexpected precision bits %#x", uint(RealPrecision(3)))
	}
}

func TestBuilder(t *testing.T) {
	inner, err := NewBuilder().Str("type", "answer").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer inner.Release()

	v, err := NewBuilder().
		Str("echotest", "event").
		Int("room", 1234).
		Bool("ok", true).
		Real("ratio", 0.5).
		Null("error").
		Strs("codecs", []string{"opus", "vp8"}).
		Value("jsep", inner).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer v.Release()

	out, _ := v.Dumps(Compact)
	want := `{"echotest":"event","room":1234,"ok":true,"ratio":0.5,"error":null,"codecs":["opus","vp8"],"jsep":{"type":"answer"}}`
	if out != want {
		t.Errorf("Builder mismatch:\n got: %s\nwant: %s", out, want)
	}
	if inner.RefCount() != 2 {
		t.Errorf("Expected jsep shared with the builder output, got %d", inner.RefCount())
	}
}

func TestBuilderBuildsOnce(t *testing.T) {
	b := NewBuilder().Int("room", 1)
	v, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer v.Release()

	if again, err := b.Build(); again != nil || !errors.Is(err, ErrBuilt) {
		t.Errorf("Expected ErrBuilt from a second Build, got %v %v", again, err)
	}
	b.Str("late", "x")
	if v.Len() != 1 || v.RefCount() != 1 {
		t.Errorf("Expected the built object untouched, got %s (refs %d)", v, v.RefCount())
	}

	failed := NewBuilder()
	failed.err = ErrOperation
	if _, err := failed.Build(); !errors.Is(err, ErrOperation) {
		t.Fatalf("Expected the recorded error, got %v", err)
	}
	if _, err := failed.Build(); !errors.Is(err, ErrBuilt) {
		t.Errorf("Expected ErrBuilt after a failed Build, got %v", err)
	}
}

func TestGoInterop(t *testing.T) {
	type request struct {
		Request string `json:"request"`
		Bitrate int    `json:"bitrate"`
	}
	v, err := FromGo(request{Request: "configure", Bitrate: 256000})
	if err != nil {
		t.Fatalf("FromGo failed: %v", err)
	}
	defer v.Release()

	var got request
	if err := v.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(request{Request: "configure", Bitrate: 256000}, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpStringUsesJanssonAllocator(t *testing.T) {
	v := Integer(7)
	defer v.Release()
	s, err := v.DumpString(EncodeAny)
	if err != nil {
		t.Fatalf("DumpString failed: %v", err)
	}
	defer s.Free()
	if s.Lossy() != "7" {
		t.Errorf("Expected 7, got %q", s.Lossy())
	}
	if _, free := AllocFuncs(); free == nil {
		t.Error("Expected a configured free function")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	v := mustLoad(t, sample, 0)
	c := v.Clone()
	if v.RefCount() != 2 {
		t.Fatalf("Expected 2 after Clone, got %d", v.RefCount())
	}
	c.Release()
	c.Release()
	if v.RefCount() != 1 {
		t.Errorf("Expected 1 after releasing the clone twice, got %d", v.RefCount())
	}
}
