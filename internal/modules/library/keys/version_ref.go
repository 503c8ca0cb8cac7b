package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LibraryVersionRef pins an item-bank source to a library and, optionally, a
// version. An empty Version means "latest". Library never carries a version.
type LibraryVersionRef struct {
	Library LibraryKey
	Version string
}

// NewLibraryVersionRef builds a ref from a parsed key. A version embedded in the
// key is promoted to the Version field; it must agree with version when both
// are present.
func NewLibraryVersionRef(key LibraryKey, version string) (LibraryVersionRef, error) {
	version = strings.TrimSpace(version)
	if key.IsZero() {
		return LibraryVersionRef{}, parseErr(ParseErrorEmpty, key.String(), "library key required")
	}
	if version != "" && !validVersion(version) {
		return LibraryVersionRef{}, parseErr(ParseErrorInvalidChars, version, "bad version")
	}
	if key.Version != "" {
		if version != "" && version != key.Version {
			return LibraryVersionRef{}, parseErr(
				ParseErrorVersionMismatch,
				key.String(),
				fmt.Sprintf("key version %s disagrees with %s", key.Version, version),
			)
		}
		version = key.Version
	}
	return LibraryVersionRef{Library: key.Versionless(), Version: version}, nil
}

// NewLibraryVersionRefFromString is NewLibraryVersionRef for a serialized key.
func NewLibraryVersionRefFromString(rawKey, version string) (LibraryVersionRef, error) {
	key, err := ParseLibraryKey(rawKey)
	if err != nil {
		return LibraryVersionRef{}, err
	}
	return NewLibraryVersionRef(key, version)
}

// Key returns the library key pinned to the ref's version, if any.
func (r LibraryVersionRef) Key() LibraryKey {
	return r.Library.ForVersion(r.Version)
}

func (r LibraryVersionRef) String() string {
	v := "null"
	if r.Version != "" {
		v = r.Version
	}
	return "[" + r.Library.String() + ", " + v + "]"
}

func (r LibraryVersionRef) MarshalJSON() ([]byte, error) {
	var version any
	if r.Version != "" {
		version = r.Version
	}
	return json.Marshal([]any{r.Library.Versionless().String(), version})
}

func (r *LibraryVersionRef) UnmarshalJSON(data []byte) error {
	parsed, err := ParseLibraryVersionRef(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseLibraryVersionRef decodes the `[key, version|null]` wire form.
func ParseLibraryVersionRef(data []byte) (LibraryVersionRef, error) {
	input := string(bytes.TrimSpace(data))
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return LibraryVersionRef{}, &ParseError{Kind: ParseErrorMalformed, Input: input, Detail: "expected a JSON array"}
	}
	if len(tuple) != 2 {
		return LibraryVersionRef{}, parseErr(ParseErrorMalformed, input, fmt.Sprintf("expected 2 elements, got %d", len(tuple)))
	}
	var rawKey string
	if err := json.Unmarshal(tuple[0], &rawKey); err != nil {
		return LibraryVersionRef{}, parseErr(ParseErrorMalformed, input, "library key must be a string")
	}
	var version *string
	if err := json.Unmarshal(tuple[1], &version); err != nil {
		return LibraryVersionRef{}, parseErr(ParseErrorMalformed, input, "version must be a string or null")
	}
	v := ""
	if version != nil {
		v = *version
		if strings.TrimSpace(v) == "" {
			return LibraryVersionRef{}, parseErr(ParseErrorMalformed, input, "version must not be blank")
		}
	}
	return NewLibraryVersionRefFromString(rawKey, v)
}

// ParseLibraryVersionRefs decodes a JSON array of refs. Empty input yields nil.
func ParseLibraryVersionRefs(data []byte) ([]LibraryVersionRef, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, parseErr(ParseErrorMalformed, string(trimmed), "expected a JSON array of refs")
	}
	out := make([]LibraryVersionRef, 0, len(items))
	for _, item := range items {
		ref, err := ParseLibraryVersionRef(item)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

// MarshalLibraryVersionRefs renders refs in their stored form; nil encodes as [].
func MarshalLibraryVersionRefs(refs []LibraryVersionRef) ([]byte, error) {
	if refs == nil {
		refs = []LibraryVersionRef{}
	}
	return json.Marshal(refs)
}
