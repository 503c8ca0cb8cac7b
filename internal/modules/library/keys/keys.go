// Package keys parses and renders the opaque identifiers used across the content
// library subsystem: library keys, course keys, block usage keys, and the
// (library, version) references stored on item-banks.
package keys

import (
	"fmt"
	"strings"
)

const (
	LibraryPrefix      = "library-v1"
	CoursePrefix       = "course-v1"
	CourseBlockPrefix  = "block-v1"
	LibraryBlockPrefix = "lib-block-v1"

	versionTag = "version@"
	branchTag  = "branch@"
	typeTag    = "type@"
	blockTag   = "block@"
)

type ParseErrorKind string

const (
	ParseErrorEmpty           ParseErrorKind = "empty"
	ParseErrorPrefix          ParseErrorKind = "unknown_prefix"
	ParseErrorMalformed       ParseErrorKind = "malformed"
	ParseErrorInvalidChars    ParseErrorKind = "invalid_chars"
	ParseErrorVersionMismatch ParseErrorKind = "version_mismatch"
)

// ParseError is returned for any key or reference that cannot be parsed.
type ParseError struct {
	Kind   ParseErrorKind
	Input  string
	Detail string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "invalid key"
	}
	if e.Detail != "" {
		return fmt.Sprintf("invalid key %q (%s): %s", e.Input, e.Kind, e.Detail)
	}
	return fmt.Sprintf("invalid key %q (%s)", e.Input, e.Kind)
}

func parseErr(kind ParseErrorKind, input, detail string) error {
	return &ParseError{Kind: kind, Input: input, Detail: detail}
}

func validPart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.', r == '~':
		default:
			return false
		}
	}
	return true
}

func validVersion(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// LibraryKey names a content library, optionally pinned to a version.
type LibraryKey struct {
	Org     string
	Library string
	Version string
}

func ParseLibraryKey(raw string) (LibraryKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return LibraryKey{}, parseErr(ParseErrorEmpty, raw, "")
	}
	rest, ok := strings.CutPrefix(s, LibraryPrefix+":")
	if !ok {
		return LibraryKey{}, parseErr(ParseErrorPrefix, raw, "expected "+LibraryPrefix)
	}
	parts := strings.Split(rest, "+")
	if len(parts) < 2 {
		return LibraryKey{}, parseErr(ParseErrorMalformed, raw, "expected ORG+LIBRARY")
	}
	k := LibraryKey{Org: parts[0], Library: parts[1]}
	if !validPart(k.Org) || !validPart(k.Library) {
		return LibraryKey{}, parseErr(ParseErrorInvalidChars, raw, "")
	}
	for _, p := range parts[2:] {
		switch {
		case strings.HasPrefix(p, branchTag):
			// libraries only have one branch; accepted for compatibility
		case strings.HasPrefix(p, versionTag):
			v := strings.TrimPrefix(p, versionTag)
			if !validVersion(v) {
				return LibraryKey{}, parseErr(ParseErrorInvalidChars, raw, "bad version")
			}
			k.Version = v
		default:
			return LibraryKey{}, parseErr(ParseErrorMalformed, raw, "unexpected segment "+p)
		}
	}
	return k, nil
}

func MustParseLibraryKey(raw string) LibraryKey {
	k, err := ParseLibraryKey(raw)
	if err != nil {
		panic(err)
	}
	return k
}

func (k LibraryKey) String() string {
	s := LibraryPrefix + ":" + k.Org + "+" + k.Library
	if k.Version != "" {
		s += "+" + versionTag + k.Version
	}
	return s
}

func (k LibraryKey) IsZero() bool { return k.Org == "" && k.Library == "" }

func (k LibraryKey) Versionless() LibraryKey {
	k.Version = ""
	return k
}

func (k LibraryKey) ForVersion(version string) LibraryKey {
	k.Version = version
	return k
}

func (k LibraryKey) MakeUsageKey(blockType, blockID string) UsageKey {
	return UsageKey{Kind: ContextLibrary, Org: k.Org, Library: k.Library, BlockType: blockType, BlockID: blockID}
}

// CourseKey names a course run.
type CourseKey struct {
	Org    string
	Course string
	Run    string
}

func ParseCourseKey(raw string) (CourseKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return CourseKey{}, parseErr(ParseErrorEmpty, raw, "")
	}
	rest, ok := strings.CutPrefix(s, CoursePrefix+":")
	if !ok {
		return CourseKey{}, parseErr(ParseErrorPrefix, raw, "expected "+CoursePrefix)
	}
	parts := strings.Split(rest, "+")
	if len(parts) != 3 {
		return CourseKey{}, parseErr(ParseErrorMalformed, raw, "expected ORG+COURSE+RUN")
	}
	k := CourseKey{Org: parts[0], Course: parts[1], Run: parts[2]}
	if !validPart(k.Org) || !validPart(k.Course) || !validPart(k.Run) {
		return CourseKey{}, parseErr(ParseErrorInvalidChars, raw, "")
	}
	return k, nil
}

func (k CourseKey) String() string {
	return CoursePrefix + ":" + k.Org + "+" + k.Course + "+" + k.Run
}

func (k CourseKey) MakeUsageKey(blockType, blockID string) UsageKey {
	return UsageKey{Kind: ContextCourse, Org: k.Org, Course: k.Course, Run: k.Run, BlockType: blockType, BlockID: blockID}
}

type ContextKind string

const (
	ContextCourse  ContextKind = "course"
	ContextLibrary ContextKind = "library"
)

// UsageKey addresses one block inside a course or a library.
type UsageKey struct {
	Kind      ContextKind
	Org       string
	Course    string
	Run       string
	Library   string
	BlockType string
	BlockID   string
}

func ParseUsageKey(raw string) (UsageKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return UsageKey{}, parseErr(ParseErrorEmpty, raw, "")
	}
	var (
		kind     ContextKind
		rest     string
		ctxParts int
	)
	if r, ok := strings.CutPrefix(s, CourseBlockPrefix+":"); ok {
		kind, rest, ctxParts = ContextCourse, r, 3
	} else if r, ok := strings.CutPrefix(s, LibraryBlockPrefix+":"); ok {
		kind, rest, ctxParts = ContextLibrary, r, 2
	} else {
		return UsageKey{}, parseErr(ParseErrorPrefix, raw, "expected "+CourseBlockPrefix+" or "+LibraryBlockPrefix)
	}

	parts := strings.Split(rest, "+")
	if len(parts) != ctxParts+2 {
		return UsageKey{}, parseErr(ParseErrorMalformed, raw, "wrong number of segments")
	}
	blockType, okType := strings.CutPrefix(parts[ctxParts], typeTag)
	blockID, okBlock := strings.CutPrefix(parts[ctxParts+1], blockTag)
	if !okType || !okBlock {
		return UsageKey{}, parseErr(ParseErrorMalformed, raw, "expected type@T+block@ID")
	}
	for _, p := range append(parts[:ctxParts:ctxParts], blockType, blockID) {
		if !validPart(p) {
			return UsageKey{}, parseErr(ParseErrorInvalidChars, raw, "")
		}
	}

	k := UsageKey{Kind: kind, Org: parts[0], BlockType: blockType, BlockID: blockID}
	if kind == ContextCourse {
		k.Course, k.Run = parts[1], parts[2]
	} else {
		k.Library = parts[1]
	}
	return k, nil
}

func MustParseUsageKey(raw string) UsageKey {
	k, err := ParseUsageKey(raw)
	if err != nil {
		panic(err)
	}
	return k
}

func (k UsageKey) IsLibrary() bool { return k.Kind == ContextLibrary }

func (k UsageKey) CourseKey() CourseKey {
	return CourseKey{Org: k.Org, Course: k.Course, Run: k.Run}
}

func (k UsageKey) LibraryKey() LibraryKey {
	return LibraryKey{Org: k.Org, Library: k.Library}
}

// ContextKey renders the course or library key that owns the block.
func (k UsageKey) ContextKey() string {
	if k.IsLibrary() {
		return k.LibraryKey().String()
	}
	return k.CourseKey().String()
}

// WithBlock returns a usage key in the same context for a different block.
func (k UsageKey) WithBlock(blockType, blockID string) UsageKey {
	k.BlockType = blockType
	k.BlockID = blockID
	return k
}

func (k UsageKey) String() string {
	tail := "+" + typeTag + k.BlockType + "+" + blockTag + k.BlockID
	if k.IsLibrary() {
		return LibraryBlockPrefix + ":" + k.Org + "+" + k.Library + tail
	}
	return CourseBlockPrefix + ":" + k.Org + "+" + k.Course + "+" + k.Run + tail
}
