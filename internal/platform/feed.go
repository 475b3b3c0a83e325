package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"nfpwatch/internal/store"
)

// FeedItem is one piece of ephemeral media as reported by the platform API.
type FeedItem struct {
	NativeID   string
	Kind       store.Kind
	Locator    string
	Caption    string
	CapturedAt time.Time
}

// FeedConfig configures the private feed API client.
type FeedConfig struct {
	APIBaseURL string
	AppID      string
	UserAgent  string
	Timeout    time.Duration
}

// FeedClient talks to the platform's private JSON API using a session's
// cookies. It never mutates the session; invalidation is the caller's call.
type FeedClient struct {
	cfg   FeedConfig
	httpc *http.Client
	log   *zap.Logger
}

// NewFeedClient creates a feed API client.
func NewFeedClient(cfg FeedConfig, log *zap.Logger) *FeedClient {
	return &FeedClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		log:   log,
	}
}

// ResolveIdentity maps a normalized handle to the platform's internal user
// id. Returns ErrTargetNotFound when the account does not exist.
func (c *FeedClient) ResolveIdentity(ctx context.Context, sess *Session, handle string) (string, error) {
	u := fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s",
		c.cfg.APIBaseURL, url.QueryEscape(handle))

	var payload struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, sess, "resolve identity", u, &payload); err != nil {
		return "", err
	}
	if payload.Data.User.ID == "" {
		return "", ErrTargetNotFound
	}
	return payload.Data.User.ID, nil
}

// FetchEphemeralFeed returns the target's current ephemeral items, oldest
// first as the API reports them. An empty slice means no active items.
func (c *FeedClient) FetchEphemeralFeed(ctx context.Context, sess *Session, userID string) ([]FeedItem, error) {
	u := fmt.Sprintf("%s/api/v1/feed/reels_media/?reel_ids=%s",
		c.cfg.APIBaseURL, url.QueryEscape(userID))

	var payload struct {
		ReelsMedia []struct {
			Items []feedItemJSON `json:"items"`
		} `json:"reels_media"`
	}
	if err := c.getJSON(ctx, sess, "fetch feed", u, &payload); err != nil {
		return nil, err
	}

	var items []FeedItem
	for _, reel := range payload.ReelsMedia {
		for _, raw := range reel.Items {
			item, ok := raw.toFeedItem()
			if !ok {
				c.log.Debug("skipping feed entry without a usable locator",
					zap.String("native_id", raw.nativeID()))
				continue
			}
			items = append(items, item)
		}
	}
	return items, nil
}

type feedItemJSON struct {
	ID        string      `json:"id"`
	PK        json.Number `json:"pk"`
	MediaType int         `json:"media_type"`
	TakenAt   int64       `json:"taken_at"`
	Caption   *struct {
		Text string `json:"text"`
	} `json:"caption"`
	VideoVersions []struct {
		URL string `json:"url"`
	} `json:"video_versions"`
	ImageVersions2 struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
}

func (j feedItemJSON) nativeID() string {
	if j.ID != "" {
		return j.ID
	}
	return j.PK.String()
}

func (j feedItemJSON) toFeedItem() (FeedItem, bool) {
	item := FeedItem{
		NativeID: j.nativeID(),
		Kind:     store.KindImage,
	}
	// A missing capture timestamp stays zero; the store substitutes the
	// save time.
	if j.TakenAt > 0 {
		item.CapturedAt = time.Unix(j.TakenAt, 0).UTC()
	}
	if item.NativeID == "" || item.NativeID == "0" {
		return FeedItem{}, false
	}
	if j.Caption != nil {
		item.Caption = j.Caption.Text
	}

	// media_type 2 is video; everything else is treated as a still.
	if j.MediaType == 2 && len(j.VideoVersions) > 0 {
		item.Kind = store.KindVideo
		item.Locator = j.VideoVersions[0].URL
	} else if len(j.ImageVersions2.Candidates) > 0 {
		item.Locator = j.ImageVersions2.Candidates[0].URL
	}
	if item.Locator == "" {
		return FeedItem{}, false
	}
	return item, true
}

func (c *FeedClient) getJSON(ctx context.Context, sess *Session, op, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &FetchError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-IG-App-ID", c.cfg.AppID)
	req.Header.Set("Cookie", sess.CookieHeader())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &FetchError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrTargetNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, ErrSessionInvalid)
	case resp.StatusCode != http.StatusOK:
		return &FetchError{Op: op, URL: u, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, URL: u, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
