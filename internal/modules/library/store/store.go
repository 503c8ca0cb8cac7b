// Package store reads libraries, library versions, and library blocks out of
// the block store on behalf of the copier, the item-bank, and the search
// projector. Missing libraries and versions are reported as nil, never as
// errors.
package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/markup"
)

const BlockTypeProblem = types.BlockTypeProblem

// Library is a library pinned to one version.
type Library struct {
	ID          uuid.UUID
	Key         keys.LibraryKey
	DisplayName string
	Version     string
	Org         string
	Children    []string

	structure *types.LibraryStructure
	defs      map[uuid.UUID]*types.Definition
}

// Block is one library block as seen at the library's pinned version.
type Block struct {
	ID           string
	UsageKey     keys.UsageKey
	BlockType    string
	DisplayName  string
	DefinitionID uuid.UUID
	Settings     map[string]any
	Children     []string
	ProblemTypes []string
}

// FilteredChild pairs a child id with its block.
type FilteredChild struct {
	ID    string
	Block *Block
}

type Store interface {
	GetLibrary(dbc dbctx.Context, key keys.LibraryKey) (*Library, error)
	GetLibraryVersion(dbc dbctx.Context, key keys.LibraryKey) (string, error)
	GetLibraryDisplayName(dbc dbctx.Context, key keys.LibraryKey) (string, bool, error)
	// IterFilteredChildren returns the top-level children of lib that pass
	// capaType. Descendants are never filtered.
	IterFilteredChildren(dbc dbctx.Context, lib *Library, capaType string) ([]FilteredChild, error)
	Block(dbc dbctx.Context, lib *Library, id string) (*Block, error)
	// Descendants returns every block below id, depth-first in child order.
	Descendants(dbc dbctx.Context, lib *Library, id string) ([]*Block, error)
	ListLibraries(dbc dbctx.Context) ([]*types.Library, error)
	Definition(dbc dbctx.Context, id uuid.UUID) (*types.Definition, error)
}

type store struct {
	log      *logger.Logger
	libs     contentrepo.LibraryRepo
	versions contentrepo.LibraryVersionRepo
	defs     contentrepo.DefinitionRepo
}

func New(baseLog *logger.Logger, libs contentrepo.LibraryRepo, versions contentrepo.LibraryVersionRepo, defs contentrepo.DefinitionRepo) Store {
	return &store{
		log:      baseLog.With("service", "LibraryStore"),
		libs:     libs,
		versions: versions,
		defs:     defs,
	}
}

func (s *store) GetLibrary(dbc dbctx.Context, key keys.LibraryKey) (*Library, error) {
	if key.IsZero() {
		return nil, nil
	}
	row, err := s.libs.GetByKey(dbc, key.Versionless().String())
	if err != nil {
		return nil, fmt.Errorf("load library %s: %w", key, err)
	}
	if row == nil {
		return nil, nil
	}
	version := key.Version
	if version == "" {
		version = row.CurrentVersion
	}
	snap, err := s.versions.Get(dbc, row.ID, version)
	if err != nil {
		return nil, fmt.Errorf("load library %s version %s: %w", key, version, err)
	}
	if snap == nil {
		return nil, nil
	}
	structure, err := DecodeStructure(snap.Structure)
	if err != nil {
		return nil, fmt.Errorf("decode library %s version %s: %w", key, version, err)
	}
	display := row.DisplayName
	if strings.TrimSpace(structure.DisplayName) != "" {
		display = structure.DisplayName
	}
	return &Library{
		ID:          row.ID,
		Key:         key.Versionless().ForVersion(version),
		DisplayName: display,
		Version:     version,
		Org:         row.Org,
		Children:    append([]string(nil), structure.Children...),
		structure:   structure,
	}, nil
}

// GetLibraryVersion returns "" when the library does not exist.
func (s *store) GetLibraryVersion(dbc dbctx.Context, key keys.LibraryKey) (string, error) {
	row, err := s.libs.GetByKey(dbc, key.Versionless().String())
	if err != nil {
		return "", fmt.Errorf("load library %s: %w", key, err)
	}
	if row == nil {
		return "", nil
	}
	return row.CurrentVersion, nil
}

func (s *store) GetLibraryDisplayName(dbc dbctx.Context, key keys.LibraryKey) (string, bool, error) {
	row, err := s.libs.GetByKey(dbc, key.Versionless().String())
	if err != nil {
		return "", false, fmt.Errorf("load library %s: %w", key, err)
	}
	if row == nil {
		return "", false, nil
	}
	return row.DisplayName, true, nil
}

func (s *store) ListLibraries(dbc dbctx.Context) ([]*types.Library, error) {
	return s.libs.List(dbc)
}

func (s *store) Definition(dbc dbctx.Context, id uuid.UUID) (*types.Definition, error) {
	return s.defs.GetByID(dbc, id)
}

func (s *store) IterFilteredChildren(dbc dbctx.Context, lib *Library, capaType string) ([]FilteredChild, error) {
	if lib == nil {
		return nil, nil
	}
	filter := strings.TrimSpace(capaType)
	anyType := filter == "" || filter == types.CapaTypeAny
	if !anyType {
		if err := s.loadDefinitions(dbc, lib, lib.Children); err != nil {
			return nil, err
		}
	}
	out := make([]FilteredChild, 0, len(lib.Children))
	for _, id := range lib.Children {
		b := s.block(lib, id)
		if b == nil {
			s.log.Warn("library child missing from structure", "library", lib.Key.String(), "block_id", id)
			continue
		}
		if !anyType {
			if b.BlockType != BlockTypeProblem || !markup.MatchesCapaType(b.ProblemTypes, filter) {
				continue
			}
		}
		out = append(out, FilteredChild{ID: id, Block: b})
	}
	return out, nil
}

func (s *store) Block(dbc dbctx.Context, lib *Library, id string) (*Block, error) {
	if lib == nil {
		return nil, nil
	}
	if err := s.loadDefinitions(dbc, lib, []string{id}); err != nil {
		return nil, err
	}
	return s.block(lib, id), nil
}

func (s *store) Descendants(dbc dbctx.Context, lib *Library, id string) ([]*Block, error) {
	if lib == nil || lib.structure == nil {
		return nil, nil
	}
	var ids []string
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(cur string) {
		sb := lib.structure.Blocks[cur]
		if sb == nil {
			return
		}
		for _, c := range sb.Children {
			if seen[c] {
				continue
			}
			seen[c] = true
			ids = append(ids, c)
			walk(c)
		}
	}
	walk(id)
	if err := s.loadDefinitions(dbc, lib, ids); err != nil {
		return nil, err
	}
	out := make([]*Block, 0, len(ids))
	for _, c := range ids {
		if b := s.block(lib, c); b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

// loadDefinitions fetches the definitions of problem blocks among ids that
// are not cached on lib yet.
func (s *store) loadDefinitions(dbc dbctx.Context, lib *Library, ids []string) error {
	if lib.structure == nil {
		return nil
	}
	if lib.defs == nil {
		lib.defs = map[uuid.UUID]*types.Definition{}
	}
	var missing []uuid.UUID
	for _, id := range ids {
		sb := lib.structure.Blocks[id]
		if sb == nil || sb.BlockType != BlockTypeProblem || sb.DefinitionID == uuid.Nil {
			continue
		}
		if _, ok := lib.defs[sb.DefinitionID]; ok {
			continue
		}
		missing = append(missing, sb.DefinitionID)
	}
	if len(missing) == 0 {
		return nil
	}
	got, err := s.defs.GetByIDs(dbc, missing)
	if err != nil {
		return fmt.Errorf("load definitions for %s: %w", lib.Key, err)
	}
	for _, id := range missing {
		lib.defs[id] = got[id]
	}
	return nil
}

func (s *store) block(lib *Library, id string) *Block {
	if lib.structure == nil {
		return nil
	}
	sb := lib.structure.Blocks[id]
	if sb == nil {
		return nil
	}
	b := &Block{
		ID:           id,
		UsageKey:     lib.Key.Versionless().MakeUsageKey(sb.BlockType, id),
		BlockType:    sb.BlockType,
		DisplayName:  sb.DisplayName,
		DefinitionID: sb.DefinitionID,
		Settings:     sb.Settings,
		Children:     append([]string(nil), sb.Children...),
	}
	if def := lib.defs[sb.DefinitionID]; def != nil && sb.BlockType == BlockTypeProblem {
		b.ProblemTypes = markup.ProblemTypes(def.Data)
	}
	return b
}

// DecodeStructure decodes a stored snapshot; empty input is an empty library.
func DecodeStructure(raw []byte) (*types.LibraryStructure, error) {
	out := &types.LibraryStructure{Blocks: map[string]*types.StructureBlock{}}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	if out.Blocks == nil {
		out.Blocks = map[string]*types.StructureBlock{}
	}
	return out, nil
}

// EncodeStructure is the inverse of DecodeStructure.
func EncodeStructure(s *types.LibraryStructure) ([]byte, error) {
	if s == nil {
		s = &types.LibraryStructure{}
	}
	if s.Children == nil {
		s.Children = []string{}
	}
	if s.Blocks == nil {
		s.Blocks = map[string]*types.StructureBlock{}
	}
	return json.Marshal(s)
}
