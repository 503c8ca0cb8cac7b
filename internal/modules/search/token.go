package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/meilisearch"
)

const (
	// MaxTokenTTL is the longest lifetime a tenant token may have.
	MaxTokenTTL = 168 * time.Hour
	// MaxAccessEntries caps each list embedded in a token filter.
	MaxAccessEntries = 1000
)

var errNotConfigured = fmt.Errorf("search index: %w", errs.ErrNotConfigured)

// SearchToken is what a client needs to query the index directly.
type SearchToken struct {
	URL       string    `json:"url"`
	IndexName string    `json:"index_name"`
	APIKey    string    `json:"api_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Access is the set of contexts a user may search.
type Access struct {
	Global    bool
	Orgs      []string
	AccessIDs []int64
}

// Filter renders the Meilisearch filter for a non-global user. Empty lists
// render as an always-false filter.
func (a Access) Filter() string {
	orgs := "org IN " + quoteList(a.Orgs)
	ids := make([]string, 0, len(a.AccessIDs))
	for _, id := range a.AccessIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	accessIDs := "access_id IN [" + strings.Join(ids, ", ") + "]"
	switch {
	case len(a.Orgs) > 0 && len(a.AccessIDs) == 0:
		return orgs
	case len(a.Orgs) == 0 && len(a.AccessIDs) > 0:
		return accessIDs
	}
	return orgs + " OR " + accessIDs
}

// Rules renders the tenant-token search rules for the index.
func (a Access) Rules(index string) meilisearch.SearchRules {
	if a.Global {
		return meilisearch.SearchRules{index: {}}
	}
	return meilisearch.SearchRules{index: {"filter": a.Filter()}}
}

func quoteList(values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		raw, _ := json.Marshal(v)
		parts = append(parts, string(raw))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// UserAccess resolves a user's roles, newest first, into an Access. Each list
// keeps at most MaxAccessEntries of the most recent grants. Instructor grants
// are resolved to access ids before the cap, so grants on contexts that were
// never indexed do not crowd out ones that were.
func (p *Projector) UserAccess(dbc dbctx.Context, userID string) (Access, error) {
	roles, err := p.deps.UserRoles.ListByUser(dbc, userID)
	if err != nil {
		return Access{}, fmt.Errorf("load roles for %s: %w", userID, err)
	}
	var (
		a        Access
		seenOrg  = map[string]bool{}
		seenCtx  = map[string]bool{}
		contexts []string
	)
	for _, r := range roles {
		switch r.Role {
		case types.RoleGlobalStaff:
			return Access{Global: true}, nil
		case types.RoleOrgStaff:
			if r.Org != "" && !seenOrg[r.Org] && len(a.Orgs) < MaxAccessEntries {
				seenOrg[r.Org] = true
				a.Orgs = append(a.Orgs, r.Org)
			}
		case types.RoleInstructor:
			if r.ContextKey != "" && !seenCtx[r.ContextKey] {
				seenCtx[r.ContextKey] = true
				contexts = append(contexts, r.ContextKey)
			}
		}
	}
	if len(contexts) == 0 {
		return a, nil
	}
	rows, err := p.deps.SearchAccess.GetByContextKeys(dbc, contexts)
	if err != nil {
		return Access{}, fmt.Errorf("load search access: %w", err)
	}
	for _, key := range contexts {
		if len(a.AccessIDs) == MaxAccessEntries {
			break
		}
		if row := rows[key]; row != nil {
			a.AccessIDs = append(a.AccessIDs, row.ID)
		}
	}
	return a, nil
}

// Token issues a tenant token limited to what userID may see.
func (p *Projector) Token(ctx context.Context, userID string) (*SearchToken, error) {
	if p.backend == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "search_not_configured", errNotConfigured)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errs.ErrUnauthorized)
	}
	access, err := p.UserAccess(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_search_access_failed", err)
	}
	expiresAt := time.Now().Add(p.cfg.TokenTTL).UTC()
	token, err := p.backend.GenerateTenantToken(ctx, access.Rules(p.cfg.IndexName), expiresAt)
	if err != nil {
		return nil, apierr.New(http.StatusBadGateway, "generate_search_token_failed", err)
	}
	return &SearchToken{
		URL:       p.cfg.PublicURL,
		IndexName: p.cfg.IndexName,
		APIKey:    token,
		ExpiresAt: expiresAt,
	}, nil
}
