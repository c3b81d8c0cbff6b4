package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

// Tracker sends a single event and reports the outcome. *Server implements it.
type Tracker interface {
	Track(ctx context.Context, name string, properties map[string]any, userID string) error
}

const pageViewTimeout = 5 * time.Second

var (
	skippedPrefixes = []string{"/_next", "/api"}
	assetExts       = map[string]bool{
		".ico": true, ".png": true, ".jpg": true, ".jpeg": true,
		".svg": true, ".css": true, ".js": true,
	}
	utmParams = []string{"source", "medium", "campaign", "term", "content"}
)

// PageViews tracks a page_view for every page request that is not an API
// call or a static asset. Tracking runs off the request path; failures are
// logged and never affect the response.
func PageViews(t Tracker, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPage(r) {
				props := pageViewProperties(r)
				ctx := context.WithoutCancel(r.Context())
				go func() {
					ctx, cancel := context.WithTimeout(ctx, pageViewTimeout)
					defer cancel()
					if err := t.Track(ctx, "page_view", props, ""); err != nil {
						logger.Warn("failed to track page view", "path", props["path"], "error", err)
					}
				}()
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPage(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	p := r.URL.Path
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return false
		}
	}
	return !assetExts[strings.ToLower(path.Ext(p))]
}

func pageViewProperties(r *http.Request) map[string]any {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}

	utm := map[string]any{}
	q := r.URL.Query()
	for _, p := range utmParams {
		if v := q.Get("utm_" + p); v != "" {
			utm[p] = v
		}
	}

	props := map[string]any{
		"url":       scheme + "://" + r.Host + r.URL.RequestURI(),
		"host":      r.Host,
		"path":      r.URL.Path,
		"userAgent": r.UserAgent(),
		"isServer":  true,
		"utm":       utm,
	}
	if ref := r.Referer(); ref != "" {
		props["referrer"] = ref
	}
	return props
}
