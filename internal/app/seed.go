package app

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/contentlib/internal/data/repos"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/itembank"
	"github.com/yungbote/contentlib/internal/modules/library/authoring"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/tagging"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

// Fixtures is the libctl seed file layout.
type Fixtures struct {
	Libraries  []LibraryFixture  `yaml:"libraries"`
	Courses    []CourseFixture   `yaml:"courses"`
	ItemBanks  []ItemBankFixture `yaml:"itembanks"`
	Taxonomies []TaxonomyFixture `yaml:"taxonomies"`
	Roles      []RoleFixture     `yaml:"roles"`
}

type BlockFixture struct {
	// Parent is the block id of a block defined earlier in the same list;
	// empty places the block at the top level.
	Parent      string         `yaml:"parent"`
	Type        string         `yaml:"type"`
	ID          string         `yaml:"id"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
	Data        string         `yaml:"data"`
}

type LibraryFixture struct {
	Org         string         `yaml:"org"`
	Slug        string         `yaml:"slug"`
	DisplayName string         `yaml:"display_name"`
	Blocks      []BlockFixture `yaml:"blocks"`
}

type CourseFixture struct {
	Org         string         `yaml:"org"`
	Course      string         `yaml:"course"`
	Run         string         `yaml:"run"`
	DisplayName string         `yaml:"display_name"`
	Blocks      []BlockFixture `yaml:"blocks"`
}

type ItemBankFixture struct {
	Course      string   `yaml:"course"`
	Parent      string   `yaml:"parent"`
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Libraries   []string `yaml:"libraries"`
	CapaType    string   `yaml:"capa_type"`
	Mode        string   `yaml:"mode"`
	MaxCount    *int     `yaml:"max_count"`
	AllowReset  bool     `yaml:"allow_resetting_children"`
}

type TaxonomyFixture struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tags        []struct {
		Value  string `yaml:"value"`
		Parent string `yaml:"parent"`
	} `yaml:"tags"`
	// Objects maps usage keys to tag values in this taxonomy.
	Objects map[string][]string `yaml:"objects"`
}

type RoleFixture struct {
	UserID     string `yaml:"user_id"`
	Role       string `yaml:"role"`
	Org        string `yaml:"org"`
	ContextKey string `yaml:"context_key"`
}

func ParseFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}

type SeedReport struct {
	Libraries []string `json:"libraries"`
	Courses   []string `json:"courses"`
	ItemBanks []string `json:"itembanks"`
	Tagged    int      `json:"tagged"`
	Roles     int      `json:"roles"`
}

// Seed loads fixtures in dependency order: libraries, courses, item-banks
// (synced on create), taxonomies, object tags, roles.
func (s Services) Seed(ctx context.Context, rs repos.Set, f *Fixtures) (*SeedReport, error) {
	rep := &SeedReport{}

	for _, lf := range f.Libraries {
		lib, err := s.Libraries.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: lf.Org, Slug: lf.Slug, DisplayName: lf.DisplayName})
		if err != nil {
			return rep, fmt.Errorf("library %s/%s: %w", lf.Org, lf.Slug, err)
		}
		for _, b := range lf.Blocks {
			if _, err := s.Libraries.AddBlock(ctx, lib.LibraryKey, authoring.AddBlockInput{
				ParentID:    b.Parent,
				BlockType:   b.Type,
				BlockID:     b.ID,
				DisplayName: b.DisplayName,
				Settings:    b.Settings,
				Data:        b.Data,
			}); err != nil {
				return rep, fmt.Errorf("library block %s: %w", b.ID, err)
			}
		}
		rep.Libraries = append(rep.Libraries, lib.LibraryKey)
	}

	usage := map[string]string{}
	for _, cf := range f.Courses {
		c, err := s.Courses.CreateCourse(ctx, course.CreateCourseInput{Org: cf.Org, Course: cf.Course, Run: cf.Run, DisplayName: cf.DisplayName})
		if err != nil {
			return rep, fmt.Errorf("course %s: %w", cf.Course, err)
		}
		ck, err := keys.ParseCourseKey(c.CourseKey)
		if err != nil {
			return rep, err
		}
		root := course.RootUsageKey(ck)
		usage[c.CourseKey+"/"] = root
		for _, b := range cf.Blocks {
			parent, ok := usage[c.CourseKey+"/"+b.Parent]
			if !ok {
				return rep, fmt.Errorf("course block %s: unknown parent %q", b.ID, b.Parent)
			}
			blk, err := s.Courses.CreateBlock(ctx, course.CreateBlockInput{
				ParentUsageKey: parent,
				BlockType:      b.Type,
				BlockID:        b.ID,
				DisplayName:    b.DisplayName,
				Settings:       b.Settings,
				Data:           b.Data,
			})
			if err != nil {
				return rep, fmt.Errorf("course block %s: %w", b.ID, err)
			}
			usage[c.CourseKey+"/"+b.ID] = blk.UsageKey
		}
		rep.Courses = append(rep.Courses, c.CourseKey)
	}

	for _, bf := range f.ItemBanks {
		parent, ok := usage[bf.Course+"/"+bf.Parent]
		if !ok {
			return rep, fmt.Errorf("itembank %s: unknown parent %q in %s", bf.ID, bf.Parent, bf.Course)
		}
		sources := make([]itembank.SourceLibrary, 0, len(bf.Libraries))
		for _, l := range bf.Libraries {
			sources = append(sources, itembank.SourceLibrary{LibraryKey: l})
		}
		view, err := s.ItemBanks.Create(ctx, "libctl", itembank.CreateInput{
			ParentUsageKey: parent,
			BlockID:        bf.ID,
			DisplayName:    bf.DisplayName,
			Settings: itembank.SettingsInput{
				SourceLibraries:        sources,
				CapaType:               bf.CapaType,
				Mode:                   bf.Mode,
				MaxCount:               bf.MaxCount,
				AllowResettingChildren: bf.AllowReset,
			},
		})
		if err != nil {
			return rep, fmt.Errorf("itembank %s: %w", bf.ID, err)
		}
		rep.ItemBanks = append(rep.ItemBanks, view.UsageKey)
	}

	for _, tf := range f.Taxonomies {
		if _, err := s.Tagging.CreateTaxonomy(ctx, tagging.CreateTaxonomyInput{Name: tf.Name, Description: tf.Description}); err != nil {
			return rep, fmt.Errorf("taxonomy %s: %w", tf.Name, err)
		}
		for _, t := range tf.Tags {
			if _, err := s.Tagging.CreateTag(ctx, tagging.CreateTagInput{Taxonomy: tf.Name, Value: t.Value, Parent: t.Parent}); err != nil {
				return rep, fmt.Errorf("tag %s: %w", t.Value, err)
			}
		}
		for obj, values := range tf.Objects {
			if _, err := s.Tagging.SetObjectTags(ctx, obj, tf.Name, values); err != nil {
				return rep, fmt.Errorf("tag %s: %w", obj, err)
			}
			rep.Tagged++
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	for _, r := range f.Roles {
		role := &types.UserRole{UserID: r.UserID, Role: r.Role, Org: r.Org, ContextKey: r.ContextKey}
		if err := rs.UserRoles.Create(dbc, role); err != nil {
			return rep, fmt.Errorf("role for %s: %w", r.UserID, err)
		}
		rep.Roles++
	}
	return rep, nil
}
