package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/pkg/client"
)

// maxPages bounds pagination against an upstream that never stops paging.
const maxPages = 100

type HTTPConfig struct {
	URL   string
	Token string
}

// HTTPSource reads a JSON document API. The endpoint may answer with a bare
// array or with pages of {"results": [...], "has_more": true, "next_cursor": "..."}.
type HTTPSource struct {
	*client.BaseClient
	config HTTPConfig
	logger *zap.Logger
}

type page struct {
	Results    []models.RawRecord `json:"results"`
	HasMore    bool               `json:"has_more"`
	NextCursor string             `json:"next_cursor"`
}

func NewHTTPSource(cfg HTTPConfig, clientConfig client.ClientConfig, logger *zap.Logger) *HTTPSource {
	return &HTTPSource{
		BaseClient: client.NewBaseClient("records-http", clientConfig, logger),
		config:     cfg,
		logger:     logger,
	}
}

func (s *HTTPSource) Name() string {
	return "http"
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	var headers map[string]string
	if s.config.Token != "" {
		headers = map[string]string{"Authorization": "Bearer " + s.config.Token}
	}

	var records []models.RawRecord
	cursor := ""
	for n := 0; n < maxPages; n++ {
		pageURL, err := withCursor(s.config.URL, cursor)
		if err != nil {
			return nil, err
		}

		data, err := s.GetWithHeaders(ctx, pageURL, headers)
		if err != nil {
			return nil, fmt.Errorf("fetching records: %w", err)
		}

		p, err := decodePage(data)
		if err != nil {
			return nil, err
		}
		records = append(records, p.Results...)

		if !p.HasMore || p.NextCursor == "" {
			s.logger.Debug("Fetched records",
				zap.String("url", s.config.URL),
				zap.Int("pages", n+1),
				zap.Int("count", len(records)))
			return records, nil
		}
		cursor = p.NextCursor
	}

	return nil, fmt.Errorf("fetching records: more than %d pages", maxPages)
}

func withCursor(raw, cursor string) (string, error) {
	if cursor == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid source url: %w", err)
	}
	q := u.Query()
	q.Set("start_cursor", cursor)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodePage keeps numbers as json.Number so integer fields survive intact.
func decodePage(data []byte) (page, error) {
	trimmed := bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []models.RawRecord
		if err := dec.Decode(&results); err != nil {
			return page{}, fmt.Errorf("decoding records: %w", err)
		}
		return page{Results: results}, nil
	}

	var p page
	if err := dec.Decode(&p); err != nil {
		return page{}, fmt.Errorf("decoding records: %w", err)
	}
	return p, nil
}
