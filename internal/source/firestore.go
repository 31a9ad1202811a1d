package source

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

type FirestoreConfig struct {
	ProjectID       string
	Collection      string
	CredentialsFile string
	OrderBy         string
	Limit           int
}

// FirestoreSource reads every document of one collection.
type FirestoreSource struct {
	client *firestore.Client
	config FirestoreConfig
	logger *zap.Logger
}

// NewFirestoreClient opens a client with explicit credentials when a file is
// configured, otherwise with application default credentials.
func NewFirestoreClient(ctx context.Context, cfg FirestoreConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore init: %w", err)
	}
	return client, nil
}

func NewFirestoreSource(client *firestore.Client, cfg FirestoreConfig, logger *zap.Logger) *FirestoreSource {
	return &FirestoreSource{
		client: client,
		config: cfg,
		logger: logger,
	}
}

func (s *FirestoreSource) Name() string {
	return "firestore:" + s.config.Collection
}

func (s *FirestoreSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	query := s.client.Collection(s.config.Collection).Query
	if s.config.OrderBy != "" {
		query = query.OrderBy(s.config.OrderBy, firestore.Desc)
	}
	if s.config.Limit > 0 {
		query = query.Limit(s.config.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []models.RawRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.config.Collection, err)
		}
		records = append(records, documentToRecord(snap.Ref.ID, snap.Data()))
	}

	s.logger.Debug("Fetched documents",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)))

	return records, nil
}

// documentToRecord copies the document fields and keeps the document ID.
// Firestore timestamps arrive as time.Time and integers as int64, both of
// which the normalizer accepts directly.
func documentToRecord(id string, data map[string]interface{}) models.RawRecord {
	record := make(models.RawRecord, len(data)+1)
	for k, v := range data {
		record[k] = v
	}
	if _, taken := record[IDField]; !taken && id != "" {
		record[IDField] = id
	}
	return record
}
