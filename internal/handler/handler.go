// Package handler provides HTTP request handlers for the catalog API.
package handler

import (
	"context"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
	"github.com/vyrodovalexey/inventory-catalog/internal/query"
)

// Version is the application version.
const Version = "1.0.0"

// Catalog is the item service the REST handler serves.
type Catalog interface {
	List(ctx context.Context, params query.Params) (model.Page, error)
	Get(ctx context.Context, id int64) (model.Item, error)
	Create(ctx context.Context, input *model.ItemInput) (model.Item, error)
	Update(ctx context.Context, id int64, input *model.ItemInput) (model.Item, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (model.Stats, error)
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}
