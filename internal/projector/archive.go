package projector

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"go.uber.org/zap"
)

// Archive persists projected documents under string keys.
type Archive interface {
	Upsert(ctx context.Context, key string, doc any) error
	Close() error
}

// CouchbaseArchive is the production Archive backed by the default
// collection of a Couchbase bucket.
type CouchbaseArchive struct {
	cluster    *gocb.Cluster
	collection *gocb.Collection
	logger     *zap.Logger
}

// NewCouchbaseArchive connects to the cluster and waits for the bucket
// to become ready; an unreachable archive is an init failure, not
// something to limp along without.
func NewCouchbaseArchive(cfg *config.CouchbaseConfig, logger *zap.Logger) (*CouchbaseArchive, error) {
	cluster, err := gocb.Connect(cfg.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect couchbase: %w", err)
	}

	bucket := cluster.Bucket(cfg.Bucket)
	err = bucket.WaitUntilReady(10*time.Second, nil)
	if err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("bucket %s not ready: %w", cfg.Bucket, err)
	}

	logger.Info("event-archive-connected", zap.String("bucket", cfg.Bucket))

	return &CouchbaseArchive{
		cluster:    cluster,
		collection: bucket.DefaultCollection(),
		logger:     logger,
	}, nil
}

// Upsert writes the document, replacing any previous value at the key.
func (a *CouchbaseArchive) Upsert(ctx context.Context, key string, doc any) error {
	_, err := a.collection.Upsert(key, doc, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Close releases cluster resources.
func (a *CouchbaseArchive) Close() error {
	a.logger.Info("event-archive-closing")
	return a.cluster.Close(nil)
}
