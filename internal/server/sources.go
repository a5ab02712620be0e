package server

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
)

// canonicalSourceURLs maps known source names to their home pages for the
// sources listing.
var canonicalSourceURLs = map[string]string{
	"coindesk":        "https://www.coindesk.com",
	"cointelegraph":   "https://cointelegraph.com",
	"decrypt":         "https://decrypt.co",
	"theblock":        "https://www.theblock.co",
	"bitcoinmagazine": "https://bitcoinmagazine.com",
}

type sourceEntry struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Articles int    `json:"articles"`
}

// handleSources lists the corpus per source with ingest freshness.
func (s *Server) handleSources(c echo.Context) error {
	ctx := c.Request().Context()
	counts, err := s.Articles.SourceCounts(ctx)
	if err != nil {
		return err
	}
	oldest, newest, err := s.Articles.DateRange(ctx)
	if err != nil {
		return err
	}
	lastIngest, err := s.Articles.LatestIngest(ctx)
	if err != nil {
		return err
	}

	entries := make([]sourceEntry, 0, len(counts))
	total := 0
	for name, n := range counts {
		entries = append(entries, sourceEntry{Name: name, URL: canonicalSourceURLs[name], Articles: n})
		total += n
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sources":        entries,
		"total_articles": total,
		"oldest":         oldest,
		"newest":         newest,
		"last_ingest":    lastIngest,
	})
}
