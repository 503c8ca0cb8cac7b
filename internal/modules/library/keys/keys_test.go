package keys

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLibraryKey(t *testing.T) {
	cases := []struct {
		raw  string
		want LibraryKey
	}{
		{"library-v1:OrgX+Lib1", LibraryKey{Org: "OrgX", Library: "Lib1"}},
		{"library-v1:OrgX+Lib1+version@abc123", LibraryKey{Org: "OrgX", Library: "Lib1", Version: "abc123"}},
		{"library-v1:OrgX+Lib1+branch@library+version@abc123", LibraryKey{Org: "OrgX", Library: "Lib1", Version: "abc123"}},
	}
	for _, tc := range cases {
		got, err := ParseLibraryKey(tc.raw)
		if err != nil {
			t.Fatalf("ParseLibraryKey(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLibraryKey(%q): want=%+v got=%+v", tc.raw, tc.want, got)
		}
	}
}

func TestParseLibraryKeyRejectsMalformed(t *testing.T) {
	cases := map[string]ParseErrorKind{
		"":                            ParseErrorEmpty,
		"course-v1:A+B+C":             ParseErrorPrefix,
		"library-v1:OnlyOrg":          ParseErrorMalformed,
		"library-v1:Org+Lib+extra":    ParseErrorMalformed,
		"library-v1:Org+L ib":         ParseErrorInvalidChars,
		"library-v1:Org+Lib+version@": ParseErrorInvalidChars,
	}
	for raw, kind := range cases {
		_, err := ParseLibraryKey(raw)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("ParseLibraryKey(%q): want ParseError got=%v", raw, err)
		}
		if pe.Kind != kind {
			t.Fatalf("ParseLibraryKey(%q) kind: want=%s got=%s", raw, kind, pe.Kind)
		}
	}
}

func TestUsageKeyRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"block-v1:X+Y+Z+type@problem+block@foo",
		"lib-block-v1:OrgX+Lib1+type@html+block@intro_1",
	} {
		k, err := ParseUsageKey(raw)
		if err != nil {
			t.Fatalf("ParseUsageKey(%q): %v", raw, err)
		}
		if k.String() != raw {
			t.Fatalf("UsageKey.String: want=%q got=%q", raw, k.String())
		}
	}

	k := MustParseUsageKey("block-v1:X+Y+Z+type@problem+block@foo")
	if k.ContextKey() != "course-v1:X+Y+Z" {
		t.Fatalf("ContextKey: want=%q got=%q", "course-v1:X+Y+Z", k.ContextKey())
	}
	if k.BlockType != "problem" || k.BlockID != "foo" {
		t.Fatalf("block parts: got=%+v", k)
	}
	lib := MustParseUsageKey("lib-block-v1:OrgX+Lib1+type@html+block@intro_1")
	if !lib.IsLibrary() || lib.ContextKey() != "library-v1:OrgX+Lib1" {
		t.Fatalf("library usage key context: got=%q", lib.ContextKey())
	}
}

func TestParseUsageKeyRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"block-v1:X+Y+type@problem+block@foo",
		"block-v1:X+Y+Z+problem+block@foo",
		"lib-block-v1:X+Y+type@problem",
		"unknown:X+Y",
	} {
		if _, err := ParseUsageKey(raw); err == nil {
			t.Fatalf("ParseUsageKey(%q): expected error", raw)
		}
	}
}

func TestLibraryVersionRefPromotesEmbeddedVersion(t *testing.T) {
	ref, err := NewLibraryVersionRefFromString("library-v1:OrgX+Lib1+version@v2", "")
	if err != nil {
		t.Fatalf("NewLibraryVersionRefFromString: %v", err)
	}
	if ref.Version != "v2" {
		t.Fatalf("version: want=%q got=%q", "v2", ref.Version)
	}
	if ref.Library.Version != "" {
		t.Fatalf("library key should be versionless, got=%q", ref.Library.String())
	}

	if _, err := NewLibraryVersionRefFromString("library-v1:OrgX+Lib1+version@v2", "v2"); err != nil {
		t.Fatalf("agreeing versions: %v", err)
	}

	_, err = NewLibraryVersionRefFromString("library-v1:OrgX+Lib1+version@v2", "v3")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != ParseErrorVersionMismatch {
		t.Fatalf("mismatch: want version_mismatch got=%v", err)
	}
}

func TestLibraryVersionRefRoundTrip(t *testing.T) {
	refs := []LibraryVersionRef{
		{Library: LibraryKey{Org: "OrgX", Library: "Lib1"}, Version: "5f3a9c"},
		{Library: LibraryKey{Org: "OrgX", Library: "Lib2"}},
	}
	for _, r := range refs {
		raw, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got, err := ParseLibraryVersionRef(raw)
		if err != nil {
			t.Fatalf("ParseLibraryVersionRef(%s): %v", raw, err)
		}
		if got != r {
			t.Fatalf("round trip: want=%+v got=%+v", r, got)
		}
	}
}

func TestLibraryVersionRefSerializeNormalizes(t *testing.T) {
	cases := map[string]string{
		`["library-v1:OrgX+Lib1", null]`:              `["library-v1:OrgX+Lib1",null]`,
		`["library-v1:OrgX+Lib1","abc"]`:              `["library-v1:OrgX+Lib1","abc"]`,
		`["library-v1:OrgX+Lib1+version@abc", null]`:  `["library-v1:OrgX+Lib1","abc"]`,
		`["library-v1:OrgX+Lib1+version@abc", "abc"]`: `["library-v1:OrgX+Lib1","abc"]`,
	}
	for in, want := range cases {
		ref, err := ParseLibraryVersionRef([]byte(in))
		if err != nil {
			t.Fatalf("ParseLibraryVersionRef(%s): %v", in, err)
		}
		out, err := json.Marshal(ref)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != want {
			t.Fatalf("serialize(parse(%s)): want=%s got=%s", in, want, out)
		}
	}
}

func TestParseLibraryVersionRefRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		`"library-v1:OrgX+Lib1"`,
		`["library-v1:OrgX+Lib1"]`,
		`["library-v1:OrgX+Lib1", null, null]`,
		`[42, null]`,
		`["library-v1:OrgX+Lib1", 7]`,
		`["library-v1:OrgX+Lib1", ""]`,
		`["course-v1:A+B+C", null]`,
	} {
		_, err := ParseLibraryVersionRef([]byte(in))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("ParseLibraryVersionRef(%s): want ParseError got=%v", in, err)
		}
	}
}

func TestParseLibraryVersionRefs(t *testing.T) {
	in := `[["library-v1:OrgX+Lib1","v1"],["library-v1:OrgY+Lib9",null]]`
	got, err := ParseLibraryVersionRefs([]byte(in))
	if err != nil {
		t.Fatalf("ParseLibraryVersionRefs: %v", err)
	}
	want := []LibraryVersionRef{
		{Library: LibraryKey{Org: "OrgX", Library: "Lib1"}, Version: "v1"},
		{Library: LibraryKey{Org: "OrgY", Library: "Lib9"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
	out, err := MarshalLibraryVersionRefs(got)
	if err != nil {
		t.Fatalf("MarshalLibraryVersionRefs: %v", err)
	}
	if string(out) != in {
		t.Fatalf("marshal refs: want=%s got=%s", in, out)
	}

	empty, err := ParseLibraryVersionRefs(nil)
	if err != nil || empty != nil {
		t.Fatalf("empty input: want nil,nil got=%v,%v", empty, err)
	}
}
