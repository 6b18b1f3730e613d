package menu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"mensabot/pkg/logx"
)

// ResolverConfig points the resolver at the kitchen's site.
type ResolverConfig struct {
	// IndexURL is the page scanned for a "KW <week>" link to the exact
	// document of the current week.
	IndexURL string
	// BaseURL is the directory the deterministic filename guesses are
	// resolved against.
	BaseURL string
	// FetchTimeout bounds the index-page request.
	FetchTimeout time.Duration
}

// Resolver builds the ordered candidate URL list for the current week's
// menu document. The only network side effect is a single index-page fetch
// used for dynamic discovery.
type Resolver struct {
	cfg    ResolverConfig
	client *http.Client
	log    logx.Logger
}

func NewResolver(cfg ResolverConfig, log logx.Logger) *Resolver {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Resolve returns candidate URLs in decreasing trust order: the link
// discovered on the index page (if exactly one matched), then the four
// deterministic filename guesses. It never fails; an unreachable index page
// only shortens the list.
func (r *Resolver) Resolve(ctx context.Context, today time.Time) []string {
	week := weekOf(today)

	var out []string
	if link, ok := r.discover(ctx, week); ok {
		out = append(out, link)
	}
	out = append(out, r.fallbacks(week)...)
	return dedup(out)
}

// fallbacks builds the fixed filename guesses: lowercase, uppercase, then
// both again with the kitchen's "-2" revision suffix.
func (r *Resolver) fallbacks(week WeekKey) []string {
	base := strings.TrimRight(r.cfg.BaseURL, "/")
	names := []string{
		fmt.Sprintf("%d_kw_%02d.pdf", week.Year, week.Week),
		fmt.Sprintf("%d_KW_%02d.pdf", week.Year, week.Week),
		fmt.Sprintf("%d_kw_%02d-2.pdf", week.Year, week.Week),
		fmt.Sprintf("%d_KW_%02d-2.pdf", week.Year, week.Week),
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, base+"/"+n)
	}
	return out
}

// discover scans the index page for an anchor whose text names the current
// week ("KW 7", "KW07", ...) and whose href points at a PDF. Ambiguity
// (zero or multiple matches) yields no candidate rather than a guess.
func (r *Resolver) discover(ctx context.Context, week WeekKey) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.IndexURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("index page fetch failed", logx.String("url", r.cfg.IndexURL), logx.Err(err))
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.log.Warn("index page fetch failed", logx.String("url", r.cfg.IndexURL), logx.Int("status", resp.StatusCode))
		return "", false
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		r.log.Warn("index page parse failed", logx.Err(err))
		return "", false
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`\bKW\s*0?%d\b`, week.Week))
	matches := matchingAnchors(doc, pattern)
	if len(matches) != 1 {
		if len(matches) > 1 {
			r.log.Warn("ambiguous week links on index page", logx.Int("count", len(matches)))
		}
		return "", false
	}

	idx, err := url.Parse(r.cfg.IndexURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(matches[0])
	if err != nil {
		return "", false
	}
	return idx.ResolveReference(ref).String(), true
}

// matchingAnchors walks the DOM and collects hrefs of <a> elements whose
// rendered text matches pattern and whose target is a PDF.
func matchingAnchors(n *html.Node, pattern *regexp.Regexp) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrVal(n, "href")
			if href != "" &&
				strings.HasSuffix(strings.ToLower(href), ".pdf") &&
				pattern.MatchString(nodeText(n)) {
				out = append(out, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
