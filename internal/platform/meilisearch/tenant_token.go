package meilisearch

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SearchRules maps an index uid (or "*") to its forced search parameters,
// typically {"filter": "..."}.
type SearchRules map[string]map[string]any

// GenerateTenantToken signs a tenant token with the configured API key. The
// token restricts every search made with it to rules.
func (c *Client) GenerateTenantToken(ctx context.Context, rules SearchRules, expiresAt time.Time) (string, error) {
	const op = "generate_tenant_token"
	if c.cfg.APIKey == "" {
		return "", opErr(op, OperationErrorValidation, "MEILISEARCH_API_KEY is required for tenant tokens", nil)
	}
	if !expiresAt.IsZero() && !expiresAt.After(time.Now()) {
		return "", opErr(op, OperationErrorValidation, "expiry must be in the future", nil)
	}
	uid, err := c.APIKeyUID(ctx)
	if err != nil {
		return "", err
	}
	return SignTenantToken(c.cfg.APIKey, uid, rules, expiresAt)
}

// SignTenantToken builds the HS256 JWT Meilisearch expects.
func SignTenantToken(apiKey, apiKeyUID string, rules SearchRules, expiresAt time.Time) (string, error) {
	if rules == nil {
		rules = SearchRules{}
	}
	claims := jwt.MapClaims{
		"searchRules": rules,
		"apiKeyUid":   apiKeyUID,
	}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(apiKey))
	if err != nil {
		return "", opErr("generate_tenant_token", OperationErrorEncodeFailed, "sign tenant token failed", err)
	}
	return signed, nil
}
