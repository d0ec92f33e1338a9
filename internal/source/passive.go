package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"digest_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChannelInfo describes a public channel as seen from its preview page.
// NewestPostID is the highest post id currently visible, zero when the
// channel has no visible posts.
type ChannelInfo struct {
	Username     string
	Title        string
	Description  string
	NewestPostID int64
}

// Passive scrapes the public t.me/s/<channel> preview pages. It needs no
// credentials but only sees what Telegram exposes to the web: text and
// photos, no voice or video payloads.
type Passive struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
}

// NewPassive creates a Passive source with the given HTTP client.
func NewPassive(client HTTPClient) *Passive {
	return &Passive{
		client:  client,
		baseURL: "https://t.me",
		timeout: 10 * time.Second,
	}
}

var bgImageRe = regexp.MustCompile(`background-image:\s*url\('([^']+)'\)`)

// Fetch downloads the channel preview page and returns messages with ids
// greater than afterID, ascending, at most limit of them (the newest ones).
func (p *Passive) Fetch(ctx context.Context, name string, afterID int64, limit int) ([]model.RawMessage, error) {
	// Cache-busting query param, same trick the preview page tolerates.
	url := fmt.Sprintf("%s/s/%s?_=%d", p.baseURL, name, time.Now().Unix())
	doc, err := p.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var msgs []model.RawMessage
	doc.Find("div.tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		msg, ok := parseMessage(sel)
		if !ok || msg.ID <= afterID {
			return
		}
		msgs = append(msgs, msg)
	})

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// ChannelInfo fetches the channel's preview page and extracts its OpenGraph
// metadata plus the newest visible post id. Used when a channel is first
// added: starting the watermark at the newest post keeps old history out of
// the pipeline.
func (p *Passive) ChannelInfo(ctx context.Context, name string) (*ChannelInfo, error) {
	doc, err := p.get(ctx, p.baseURL+"/s/"+name)
	if err != nil {
		return nil, err
	}

	info := &ChannelInfo{
		Username:    name,
		Title:       doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
		Description: doc.Find(`meta[property="og:description"]`).AttrOr("content", ""),
	}
	// The raw widget id counts here even when the widget carries no text or
	// media: a service post still marks where the channel currently ends.
	doc.Find("div.tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		if id, ok := widgetPostID(sel); ok && id > info.NewestPostID {
			info.NewestPostID = id
		}
	})
	return info, nil
}

func (p *Passive) get(ctx context.Context, url string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", ErrUnavailable, err)
	}
	return doc, nil
}

// parseMessage extracts one raw message from a preview page widget.
// Widgets without a parseable id, or with neither text nor media, are
// dropped.
func parseMessage(sel *goquery.Selection) (model.RawMessage, bool) {
	id, ok := widgetPostID(sel)
	if !ok {
		return model.RawMessage{}, false
	}

	msg := model.RawMessage{
		ID:   id,
		Text: strings.TrimSpace(sel.Find("div.tgme_widget_message_text").Text()),
	}

	if dt := sel.Find("time.datetime").AttrOr("datetime", ""); dt != "" {
		if ts, err := time.Parse(time.RFC3339, dt); err == nil {
			msg.Date = ts
		}
	}

	sel.Find("a.tgme_widget_message_photo_wrap").Each(func(_ int, photo *goquery.Selection) {
		m := bgImageRe.FindStringSubmatch(photo.AttrOr("style", ""))
		if m == nil {
			return
		}
		msg.Media = append(msg.Media, model.MediaRef{
			Kind:      model.MediaPhoto,
			MessageID: id,
			URL:       m[1],
		})
	})

	if msg.Text == "" && len(msg.Media) == 0 {
		return model.RawMessage{}, false
	}
	return msg, true
}

// widgetPostID parses the numeric post id out of a widget's data-post
// attribute ("channel/123").
func widgetPostID(sel *goquery.Selection) (int64, bool) {
	dataPost := sel.AttrOr("data-post", "")
	slash := strings.LastIndex(dataPost, "/")
	if slash < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(dataPost[slash+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
