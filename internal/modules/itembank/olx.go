package itembank

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
)

const (
	olxRoot       = "itembank"
	olxLegacyRoot = "library_content"
)

// OLXChild is one child reference in an item-bank export.
type OLXChild struct {
	BlockType string
	URLName   string
}

// OLXDocument is the parsed form of an item-bank's OLX.
type OLXDocument struct {
	DisplayName            string
	MaxCount               int
	Mode                   string
	CapaType               string
	AllowResettingChildren bool
	SourceLibraries        []keys.LibraryVersionRef
	Children               []OLXChild
}

// ParseOLX reads an item-bank element with a streaming decoder. Comments and
// text are dropped; only direct children are recorded. The legacy
// library_content root and its source_library_id attribute are accepted.
func ParseOLX(r io.Reader) (*OLXDocument, error) {
	dec := xml.NewDecoder(r)
	doc := &OLXDocument{MaxCount: DefaultMaxCount}
	depth := 0
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse olx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				if t.Name.Local != olxRoot && t.Name.Local != olxLegacyRoot {
					return nil, fmt.Errorf("parse olx: unexpected root <%s>", t.Name.Local)
				}
				if err := doc.readRootAttrs(t.Attr); err != nil {
					return nil, err
				}
				sawRoot = true
			case depth == 2:
				child := OLXChild{BlockType: t.Name.Local}
				for _, a := range t.Attr {
					if a.Name.Local == "url_name" {
						child.URLName = strings.TrimSpace(a.Value)
					}
				}
				doc.Children = append(doc.Children, child)
			}
		case xml.EndElement:
			depth--
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("parse olx: missing <%s> element", olxRoot)
	}
	return doc, nil
}

func (d *OLXDocument) readRootAttrs(attrs []xml.Attr) error {
	var legacyLibrary, legacyVersion string
	for _, a := range attrs {
		v := strings.TrimSpace(a.Value)
		switch a.Name.Local {
		case "display_name":
			d.DisplayName = v
		case "max_count":
			n, err := strconv.Atoi(v)
			if err != nil || n < -1 {
				return fmt.Errorf("parse olx: bad max_count %q", v)
			}
			d.MaxCount = n
		case "mode":
			d.Mode = v
		case "capa_type":
			d.CapaType = v
		case "allow_resetting_children":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse olx: bad allow_resetting_children %q", v)
			}
			d.AllowResettingChildren = b
		case "source_libraries":
			refs, err := keys.ParseLibraryVersionRefs([]byte(v))
			if err != nil {
				return fmt.Errorf("parse olx: source_libraries: %w", err)
			}
			d.SourceLibraries = refs
		case "source_library_id":
			legacyLibrary = v
		case "source_library_version":
			legacyVersion = v
		}
	}
	if d.SourceLibraries == nil && legacyLibrary != "" {
		ref, err := keys.NewLibraryVersionRefFromString(legacyLibrary, legacyVersion)
		if err != nil {
			return fmt.Errorf("parse olx: source_library_id: %w", err)
		}
		d.SourceLibraries = []keys.LibraryVersionRef{ref}
	}
	return nil
}

// WriteOLX renders doc with every child as a self-closing element.
func WriteOLX(w io.Writer, doc *OLXDocument) error {
	refs, err := keys.MarshalLibraryVersionRefs(doc.SourceLibraries)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<%s display_name=\"%s\" max_count=\"%d\" mode=\"%s\" capa_type=\"%s\" allow_resetting_children=\"%t\" source_libraries=\"%s\">\n",
		olxRoot,
		escapeAttr(doc.DisplayName),
		doc.MaxCount,
		escapeAttr(doc.Mode),
		escapeAttr(doc.CapaType),
		doc.AllowResettingChildren,
		escapeAttr(string(refs)),
	)
	for _, c := range doc.Children {
		fmt.Fprintf(bw, "  <%s url_name=\"%s\"/>\n", c.BlockType, escapeAttr(c.URLName))
	}
	fmt.Fprintf(bw, "</%s>\n", olxRoot)
	return bw.Flush()
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// ExportOLX writes the item-bank's OLX to w.
func (u Usecases) ExportOLX(ctx context.Context, usageKey string, w io.Writer) error {
	view, err := u.Get(ctx, usageKey)
	if err != nil {
		return err
	}
	doc := &OLXDocument{
		DisplayName:            view.DisplayName,
		MaxCount:               view.MaxCount,
		Mode:                   view.Mode,
		CapaType:               view.CapaType,
		AllowResettingChildren: view.AllowResettingChildren,
		SourceLibraries:        view.SourceLibraries,
	}
	for _, k := range view.Children {
		uk, err := keys.ParseUsageKey(k)
		if err != nil {
			return apierr.New(http.StatusInternalServerError, "corrupt_child_key", err)
		}
		doc.Children = append(doc.Children, OLXChild{BlockType: uk.BlockType, URLName: uk.BlockID})
	}
	if err := WriteOLX(w, doc); err != nil {
		return apierr.New(http.StatusInternalServerError, "export_failed", err)
	}
	return nil
}

// ExportToStore uploads the OLX to the configured export bucket and returns
// its URL.
func (u Usecases) ExportToStore(ctx context.Context, usageKey string) (string, error) {
	if u.deps.Exports == nil {
		return "", apierr.New(http.StatusServiceUnavailable, "export_store_not_configured", errs.ErrNotConfigured)
	}
	var buf bytes.Buffer
	if err := u.ExportOLX(ctx, usageKey, &buf); err != nil {
		return "", err
	}
	uk, err := keys.ParseUsageKey(usageKey)
	if err != nil {
		return "", apierr.New(http.StatusBadRequest, "invalid_usage_key", err)
	}
	name := fmt.Sprintf("olx/%s/%s.xml", uk.ContextKey(), uk.BlockID)
	url, err := u.deps.Exports.Upload(dbctx.Context{Ctx: ctx}, name, &buf)
	if err != nil {
		return "", apierr.New(http.StatusBadGateway, "export_upload_failed", err)
	}
	return url, nil
}

type ImportInput struct {
	ParentUsageKey string
	BlockID        string
}

// ImportOLX creates an item-bank from OLX. Children are regenerated from the
// source libraries rather than taken from the document.
func (u Usecases) ImportOLX(ctx context.Context, userID string, in ImportInput, r io.Reader) (*View, error) {
	doc, err := ParseOLX(r)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_olx", err)
	}
	sources := make([]SourceLibrary, 0, len(doc.SourceLibraries))
	for _, ref := range doc.SourceLibraries {
		sources = append(sources, SourceLibrary{LibraryKey: ref.Library.String(), Version: ref.Version})
	}
	maxCount := doc.MaxCount
	view, err := u.Create(ctx, userID, CreateInput{
		ParentUsageKey: in.ParentUsageKey,
		BlockID:        in.BlockID,
		DisplayName:    doc.DisplayName,
		Settings: SettingsInput{
			SourceLibraries:        sources,
			CapaType:               doc.CapaType,
			Mode:                   doc.Mode,
			MaxCount:               &maxCount,
			AllowResettingChildren: doc.AllowResettingChildren,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(view.Children) != len(doc.Children) {
		u.deps.Log.Warn("imported item-bank child count differs from OLX",
			"usage_key", view.UsageKey,
			"olx_children", len(doc.Children),
			"children", len(view.Children),
		)
	}
	return view, nil
}
