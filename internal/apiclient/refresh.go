package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/session"
)

const refreshKey = "refresh"

// refresh exchanges the refresh token for a new access token. Concurrent
// callers share one in-flight exchange. It returns "" on any failure.
func (c *Client) refresh(ctx context.Context) string {
	// The exchange outlives the caller that started it; others may be waiting.
	ctx = context.WithoutCancel(ctx)

	v, _, _ := c.refreshGroup.Do(refreshKey, func() (interface{}, error) {
		return c.exchangeRefreshToken(ctx), nil
	})
	token, _ := v.(string)
	return token
}

func (c *Client) exchangeRefreshToken(ctx context.Context) string {
	refreshToken := c.session.RefreshToken(ctx)
	if refreshToken == "" {
		c.log.Info("no refresh token stored, skipping refresh")
		return ""
	}

	payload, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
	r := &request{
		method:      http.MethodPost,
		endpoint:    c.refreshPath,
		body:        payload,
		contentType: "application/json",
		headers:     make(http.Header),
	}

	resp, err := c.send(ctx, r, "")
	if err != nil {
		c.log.WithError(err).Warn("token refresh failed")
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithField("status", resp.StatusCode).Warn("token refresh rejected")
		return ""
	}

	access, rotated := ParseTokens(bytes.TrimSpace(body))
	if access == "" {
		c.log.Warn("token refresh response carried no access token")
		return ""
	}

	if err := c.session.SetTokens(ctx, access, rotated); err != nil {
		c.log.WithError(err).Warn("failed to persist refreshed tokens")
	}

	fields := logrus.Fields{"rotated": rotated != ""}
	if exp, ok := session.TokenExpiry(access); ok {
		fields["expires_at"] = exp
	}
	c.log.WithFields(fields).Info("access token refreshed")

	return access
}

// ParseTokens finds the access and refresh tokens in any of the shapes the
// backend has used: at the root, under "data" or under "tokens".
func ParseTokens(body []byte) (access, refresh string) {
	obj := ParseObject(body)
	for _, scope := range []Object{obj, obj.Object("data"), obj.Object("tokens"), obj.Object("data").Object("tokens")} {
		if scope == nil {
			continue
		}
		if access == "" {
			access = scope.String("accessToken", "access_token", "token")
		}
		if refresh == "" {
			refresh = scope.String("refreshToken", "refresh_token")
		}
	}
	return access, refresh
}
