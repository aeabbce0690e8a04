// Package registry mirrors dataset, model, and prediction records to an
// InstantDB-style hosted metadata store. Mirroring is best effort: the
// local request already succeeded by the time a record is mirrored, so
// registry failures are logged and counted but never surfaced to callers.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"gemscope/internal/storage"
)

// Registry collections, appended to /apps/{appID}/data/.
const (
	datasetsCollection    = "datasets"
	modelsCollection      = "models"
	predictionsCollection = "predictions"
)

// MetricsInterface defines the metrics operations the registry reports.
type MetricsInterface interface {
	SyncsInc()
	SyncFailuresInc()
	BreakerOpenSet(open bool)
}

// Config holds registry connection settings. The client is disabled when
// AppID or Token is empty.
type Config struct {
	BaseURL string
	AppID   string
	Token   string
	Timeout time.Duration
}

// Client posts records to the hosted registry behind a circuit breaker so
// a degraded registry cannot slow every request down to its timeout.
type Client struct {
	rest    *resty.Client
	base    string
	appID   string
	enabled bool
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	metrics MetricsInterface
}

// New builds the registry client. The metrics sink may be nil.
func New(cfg Config, metrics MetricsInterface) *Client {
	r := resty.New()
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetAuthToken(cfg.Token)

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "registry",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Registry breaker state change")
			if metrics != nil {
				metrics.BreakerOpenSet(to == gobreaker.StateOpen)
			}
		},
	})

	return &Client{
		rest:    r,
		base:    cfg.BaseURL,
		appID:   cfg.AppID,
		enabled: cfg.AppID != "" && cfg.Token != "",
		breaker: breaker,
		metrics: metrics,
	}
}

// Enabled reports whether the client has enough configuration to mirror.
func (c *Client) Enabled() bool {
	return c.enabled
}

// BreakerState reports the circuit breaker state, for the status endpoint.
func (c *Client) BreakerState() string {
	if !c.enabled {
		return "disabled"
	}
	return c.breaker.State().String()
}

type datasetPayload struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"ownerId"`
	Name      string   `json:"name"`
	Bucket    string   `json:"bucket"`
	ObjectKey string   `json:"objectKey"`
	RowCount  int      `json:"rowCount"`
	Columns   []string `json:"columns"`
	Notes     string   `json:"notes,omitempty"`
	CreatedAt int64    `json:"createdAt"` // epoch milliseconds
}

type modelPayload struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"ownerId"`
	DatasetID   string             `json:"datasetId"`
	Family      string             `json:"family"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	TrainedRows int                `json:"trainedRows"`
	CreatedAt   int64              `json:"createdAt"`
}

type predictionPayload struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"ownerId"`
	DatasetID   string             `json:"datasetId"`
	ModelName   string             `json:"modelName"`
	Horizon     int                `json:"horizon,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	OutputKey   string             `json:"outputObjectKey,omitempty"`
	PreviewRows []map[string]any   `json:"previewRows,omitempty"`
	CreatedAt   int64              `json:"createdAt"`
}

// MirrorDataset mirrors a dataset record, best effort.
func (c *Client) MirrorDataset(ctx context.Context, record storage.DatasetRecord) {
	c.post(ctx, datasetsCollection, datasetPayload{
		ID:        record.ID,
		OwnerID:   record.OwnerID,
		Name:      record.Name,
		Bucket:    record.Bucket,
		ObjectKey: record.ObjectKey,
		RowCount:  record.RowCount,
		Columns:   record.Columns,
		Notes:     record.Notes,
		CreatedAt: record.CreatedAt.UnixMilli(),
	})
}

// MirrorModel mirrors a trained model record, best effort.
func (c *Client) MirrorModel(ctx context.Context, record storage.ModelRecord) {
	c.post(ctx, modelsCollection, modelPayload{
		ID:          record.ID,
		OwnerID:     record.OwnerID,
		DatasetID:   record.DatasetID,
		Family:      record.Family,
		Metrics:     record.Metrics,
		TrainedRows: record.TrainedRows,
		CreatedAt:   record.CreatedAt.UnixMilli(),
	})
}

// MirrorPrediction mirrors a batch prediction record, best effort.
func (c *Client) MirrorPrediction(ctx context.Context, record storage.PredictionRecord) {
	c.post(ctx, predictionsCollection, predictionPayload{
		ID:          record.ID,
		OwnerID:     record.OwnerID,
		DatasetID:   record.DatasetID,
		ModelName:   record.ModelFamily,
		Horizon:     record.Horizon,
		Metrics:     record.Metrics,
		OutputKey:   record.OutputKey,
		PreviewRows: record.PreviewRows,
		CreatedAt:   record.CreatedAt.UnixMilli(),
	})
}

func (c *Client) post(ctx context.Context, collection string, payload any) {
	if !c.enabled {
		return
	}

	_, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetBody(payload).
			Post(c.base + "/apps/" + c.appID + "/data/" + collection)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 400 {
			return nil, fmt.Errorf("registry error %d: %s", resp.StatusCode(), truncate(resp.String(), 300))
		}
		return resp, nil
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.SyncFailuresInc()
		}
		log.Warn().Err(err).Str("collection", collection).Msg("Registry mirror failed")
		return
	}
	if c.metrics != nil {
		c.metrics.SyncsInc()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
