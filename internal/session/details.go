package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/voicedeck/voicedeck/internal/domain"
)

// ConnectionDetails is the signaling endpoint's response.
type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	ParticipantToken string `json:"participantToken"`
}

// DetailsFetcher asks the signaling endpoint where and how to connect.
type DetailsFetcher interface {
	Fetch(ctx context.Context, roomName domain.RoomName, participant domain.UserID) (*ConnectionDetails, error)
}

// HTTPDetails fetches connection details over plain HTTP GET.
type HTTPDetails struct {
	Endpoint string
	Region   string
	Client   *http.Client
}

func NewHTTPDetails(endpoint, region string) *HTTPDetails {
	return &HTTPDetails{
		Endpoint: endpoint,
		Region:   region,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPDetails) Fetch(ctx context.Context, roomName domain.RoomName, participant domain.UserID) (*ConnectionDetails, error) {
	u, err := url.Parse(f.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("details endpoint: %w", err)
	}
	q := u.Query()
	q.Set("roomName", string(roomName))
	q.Set("participantName", string(participant))
	if f.Region != "" {
		q.Set("region", f.Region)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch connection details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("connection details: unexpected status %d", resp.StatusCode)
	}

	var det ConnectionDetails
	if err := json.NewDecoder(resp.Body).Decode(&det); err != nil {
		return nil, fmt.Errorf("decode connection details: %w", err)
	}
	return &det, nil
}
