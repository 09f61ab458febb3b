// Package api fetches short-lived TURN credentials for the peer connection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/domain"
)

const defaultTimeout = 10 * time.Second

// ErrNoServers is returned when the credentials endpoint answers without any usable server.
var ErrNoServers = errors.New("no ice servers in credentials response")

// urlList accepts both "turn:a" and ["turn:a", "turn:b"].
type urlList []string

func (u *urlList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*u = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("urls: %w", err)
	}
	*u = many
	return nil
}

type iceServer struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username"`
	Credential string  `json:"credential"`
}

// credentialsResponse covers the two shapes TURN providers commonly return:
// a full {"iceServers": [...]} list, or a single server object.
type credentialsResponse struct {
	ICEServers []iceServer `json:"iceServers"`
	iceServer
}

// Client fetches ICE server credentials.
type Client struct {
	http *http.Client
	log  logrus.FieldLogger
}

// NewClient creates an API client.
func NewClient(log logrus.FieldLogger) *Client {
	return &Client{
		http: &http.Client{Timeout: defaultTimeout},
		log:  log,
	}
}

// FetchICEServers asks url for TURN credentials. token, when set, is sent as
// a bearer token. Servers without urls are dropped.
func (c *Client) FetchICEServers(ctx context.Context, url, token string) ([]domain.ICEServer, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var credResp credentialsResponse
	if err := json.Unmarshal(respBody, &credResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	raw := credResp.ICEServers
	if len(raw) == 0 {
		raw = []iceServer{credResp.iceServer}
	}

	servers := make([]domain.ICEServer, 0, len(raw))
	for _, s := range raw {
		if len(s.URLs) == 0 {
			continue
		}
		servers = append(servers, domain.ICEServer{
			URLs:       []string(s.URLs),
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	c.log.WithField("servers", len(servers)).Debug("fetched turn credentials")
	return servers, nil
}
