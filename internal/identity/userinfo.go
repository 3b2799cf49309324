package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// UserinfoValidator validates tokens against the identity provider's
// OIDC userinfo endpoint. The provider does the cryptographic work; a
// 200 with a subject claim means the token is live.
type UserinfoValidator struct {
	userinfoURL string
	clientID    string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewUserinfoValidator creates a validator for the given userinfo URL.
// clientID selects which resource_access entry contributes client roles.
func NewUserinfoValidator(userinfoURL, clientID string, timeout time.Duration, logger *zap.Logger) *UserinfoValidator {
	return &UserinfoValidator{
		userinfoURL: userinfoURL,
		clientID:    clientID,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type userinfoResponse struct {
	Sub               string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// ValidateToken calls the userinfo endpoint with the bearer token
func (v *UserinfoValidator) ValidateToken(ctx context.Context, token string) (*Subject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if info.Sub == "" {
		v.logger.Warn("Userinfo response missing subject claim")
		return nil, ErrUnauthenticated
	}

	name := info.Name
	if name == "" {
		name = info.PreferredUsername
	}

	return &Subject{
		ID:    info.Sub,
		Name:  name,
		Email: info.Email,
		Roles: v.collectRoles(&info),
	}, nil
}

// collectRoles merges realm roles with client roles for the configured
// client, deduplicated
func (v *UserinfoValidator) collectRoles(info *userinfoResponse) []string {
	seen := make(map[string]bool)
	roles := make([]string, 0)

	add := func(rs []string) {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}

	add(info.RealmAccess.Roles)
	if client, ok := info.ResourceAccess[v.clientID]; ok {
		add(client.Roles)
	}

	return roles
}
