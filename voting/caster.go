package voting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// APICaster casts votes against the game server's HTTP API. It satisfies
// Caster; the client around it guarantees it is invoked at most once per
// voting phase.
type APICaster struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func (c *APICaster) CastVote(ctx context.Context, gameID, submissionID string) error {
	body, err := json.Marshal(map[string]string{"submissionId": submissionID})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/games/%s/votes", c.BaseURL, gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("vote rejected: %s", apiErr.Error)
		}
		return fmt.Errorf("vote rejected: status %d", resp.StatusCode)
	}
	return nil
}
