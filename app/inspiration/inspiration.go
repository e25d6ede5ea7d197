package inspiration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/scripta/app/story"
)

const (
	DefaultFeedURL       = "https://www.ilpost.it/feed/"
	DefaultQuoteURL      = "https://it.wikiquote.org/wiki/Pagina_principale"
	DefaultQuoteSelector = "#mf-qotd div"

	FallbackHeadline = "La lenta ricostruzione delle città europee"
	FallbackQuote    = "Il vero viaggio di scoperta non consiste nel cercare nuove terre, ma nell'avere nuovi occhi."
)

type Config struct {
	FeedURL       string
	QuoteURL      string
	QuoteSelector string
	UserAgent     string
	Timeout       time.Duration
}

// Fetcher gathers the day's headline and quote. Either source may fail; its
// fallback text is used instead.
type Fetcher struct {
	httpClient *http.Client
	cfg        Config
}

var _ story.InspirationSource = (*Fetcher)(nil)

func New(httpClient *http.Client, cfg Config) *Fetcher {
	if cfg.QuoteSelector == "" {
		cfg.QuoteSelector = DefaultQuoteSelector
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Fetcher{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

func (f *Fetcher) Fetch(ctx context.Context) story.Inspiration {
	in := story.Inspiration{Headline: FallbackHeadline, Quote: FallbackQuote}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		headline, err := f.headline(ctx)
		if err != nil {
			slog.Warn("Headline fetch failed, using fallback", "url", f.cfg.FeedURL, "error", err)
			return nil
		}
		in.Headline = headline
		return nil
	})
	g.Go(func() error {
		quote, err := f.quote(ctx)
		if err != nil {
			slog.Warn("Quote fetch failed, using fallback", "url", f.cfg.QuoteURL, "error", err)
			return nil
		}
		in.Quote = quote
		return nil
	})
	_ = g.Wait()

	slog.Debug("Inspiration fetched", "headline", in.Headline, "quote", in.Quote)
	return in
}

func (f *Fetcher) headline(ctx context.Context) (string, error) {
	if f.cfg.FeedURL == "" {
		return "", fmt.Errorf("no feed configured")
	}

	body, err := f.get(ctx, f.cfg.FeedURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse feed: %w", err)
	}

	for _, item := range feed.Items {
		if title := strings.TrimSpace(item.Title); title != "" {
			return title, nil
		}
	}
	return "", fmt.Errorf("feed has no titled items")
}

func (f *Fetcher) quote(ctx context.Context) (string, error) {
	if f.cfg.QuoteURL == "" {
		return "", fmt.Errorf("no quote page configured")
	}

	body, err := f.get(ctx, f.cfg.QuoteURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse quote page: %w", err)
	}

	quote := strings.Join(strings.Fields(doc.Find(f.cfg.QuoteSelector).First().Text()), " ")
	if quote == "" {
		return "", fmt.Errorf("selector %q matched no text", f.cfg.QuoteSelector)
	}
	return quote, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
