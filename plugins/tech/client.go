package tech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joshp123/techhome/internal/rate"
	"github.com/joshp123/techhome/plugins/tech/zone"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// ErrZoneNotFound is returned when a module document has no zone with the requested id.
var ErrZoneNotFound = errors.New("tech zone not found")

const zoneUnregistered = "zoneUnregistered"

// Client talks to the Tech emodul REST API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("tech api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func NewClient(cfg Config) (*Client, error) {
	return NewClientWithTransport(cfg, http.DefaultTransport)
}

// NewClientWithTransport builds the client on top of base. Requests carry the
// bearer token, pass the rate guard and are traced before reaching base.
func NewClientWithTransport(cfg Config, base http.RoundTripper) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("tech token is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("tech user id is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	perMinute := cfg.MaxRequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	guard := rate.NewGuard(rate.Provider("tech").
		MaxRequestsPerMinute(perMinute).
		CooldownOn429(time.Minute))

	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
		Base:   rate.WrapTransport(guard, otelhttp.NewTransport(base)),
	}

	return &Client{
		baseURL:    baseURL,
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// FetchModuleZones returns every registered zone of the module keyed by zone id.
func (c *Client) FetchModuleZones(ctx context.Context, moduleID string) (map[string]zone.Document, error) {
	elements, err := c.moduleZones(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	zones := make(map[string]zone.Document, len(elements))
	for _, doc := range elements {
		ident, ok := registered(doc)
		if !ok {
			continue
		}
		zones[ident.ID] = doc
	}
	return zones, nil
}

// FetchZone returns the latest document for one zone.
func (c *Client) FetchZone(ctx context.Context, moduleID, zoneID string) (zone.Document, error) {
	elements, err := c.moduleZones(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	for _, doc := range elements {
		ident, ok := registered(doc)
		if ok && ident.ID == zoneID {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%w: module %s zone %s", ErrZoneNotFound, moduleID, zoneID)
}

// SetConstTemp switches the zone to a constant target temperature.
func (c *Client) SetConstTemp(ctx context.Context, moduleID, zoneID string, celsius float64) error {
	doc, err := c.FetchZone(ctx, moduleID, zoneID)
	if err != nil {
		return err
	}

	modeID, ok := zone.Extract(doc, zone.Path{"mode", "id"})
	if !ok {
		modeID = 0
	}

	payload := map[string]any{
		"mode": map[string]any{
			"id":             modeID,
			"parentId":       idValue(zoneID),
			"mode":           "constantTemp",
			"constTempTime":  60,
			"setTemperature": int(math.Round(celsius * 10)),
			"scheduleIndex":  0,
		},
	}
	return c.postJSON(ctx, c.zonesPath(moduleID), payload)
}

// SetZone turns a zone on or off.
func (c *Client) SetZone(ctx context.Context, moduleID, zoneID string, on bool) error {
	state := "zoneOff"
	if on {
		state = "zoneOn"
	}
	payload := map[string]any{
		"zone": map[string]any{
			"id":        idValue(zoneID),
			"zoneState": state,
		},
	}
	return c.postJSON(ctx, c.zonesPath(moduleID), payload)
}

func (c *Client) moduleZones(ctx context.Context, moduleID string) ([]zone.Document, error) {
	var resp struct {
		Zones struct {
			Elements []zone.Document `json:"elements"`
		} `json:"zones"`
	}
	if err := c.getJSON(ctx, c.modulePath(moduleID), &resp); err != nil {
		return nil, err
	}
	return resp.Zones.Elements, nil
}

func (c *Client) modulePath(moduleID string) string {
	return fmt.Sprintf("/users/%s/modules/%s", url.PathEscape(c.userID), url.PathEscape(moduleID))
}

func (c *Client) zonesPath(moduleID string) string {
	return c.modulePath(moduleID) + "/zones"
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return HTTPStatusError{Status: resp.StatusCode, Body: string(data)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// registered identifies a module element, skipping null and unregistered zones.
func registered(doc zone.Document) (zone.Identity, bool) {
	if doc == nil {
		return zone.Identity{}, false
	}
	if state, ok := zone.Extract(doc, zone.Path{"zone", "zoneState"}); ok && state == zoneUnregistered {
		return zone.Identity{}, false
	}
	return zone.Identify(doc)
}

// idValue sends numeric zone ids back as numbers, which is how the API issues them.
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
