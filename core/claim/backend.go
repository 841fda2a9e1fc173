package claim

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/unihub/campus/core"
)

// BackendClient calls the privileged backend endpoint that instructs the
// identity provider to attach the admin claim. The endpoint is idempotent;
// repeat calls are safe.
type BackendClient struct {
	baseURL string
	client  *http.Client
}

var _ ClaimSetter = (*BackendClient)(nil)

func NewBackendClient(conf core.ClaimSyncConfig) *BackendClient {
	return &BackendClient{
		baseURL: conf.BackendURL,
		client:  &http.Client{Timeout: conf.CallTimeout},
	}
}

func (c *BackendClient) SetAdminClaim(ctx context.Context, uid string) error {
	body, err := json.Marshal(map[string]string{"uid": uid})
	if err != nil {
		return errors.Wrap(err, "marshalling request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/set-admin-claim", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling set-admin-claim")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil || payload.Message == "" {
			payload.Message = http.StatusText(res.StatusCode)
		}
		return errors.Errorf("set-admin-claim: %d: %s", res.StatusCode, payload.Message)
	}
	return nil
}
