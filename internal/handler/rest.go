package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/inventory-catalog/internal/cache"
	"github.com/vyrodovalexey/inventory-catalog/internal/catalog"
	"github.com/vyrodovalexey/inventory-catalog/internal/middleware"
	"github.com/vyrodovalexey/inventory-catalog/internal/model"
	"github.com/vyrodovalexey/inventory-catalog/internal/query"
	"github.com/vyrodovalexey/inventory-catalog/internal/respond"
)

// Response messages.
const (
	MsgItemNotFound   = "Item not found"
	MsgInvalidID      = "Invalid ID parameter"
	MsgInvalidBody    = "Invalid request body"
	MsgBodyTooLarge   = "Request body too large"
	MsgSomethingWrong = respond.MsgInternalError
)

var errTrailingData = errors.New("unexpected data after the JSON body")

const (
	cacheHit            = "HIT"
	cacheMiss           = "MISS"
	statsCacheKey       = "stats"
	itemsCacheKeyPrefix = "items:"
)

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	catalog      Catalog
	cache        *cache.ResponseCache
	logger       *zap.Logger
	errorDetails bool
}

// NewRESTHandler creates a new RESTHandler instance. A nil cache disables
// response caching. When errorDetails is set, internal error text is
// included in 500 responses.
func NewRESTHandler(c Catalog, rc *cache.ResponseCache, logger *zap.Logger, errorDetails bool) *RESTHandler {
	return &RESTHandler{
		catalog:      c,
		cache:        rc,
		logger:       logger,
		errorDetails: errorDetails,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/api/items", h.CreateItem).Methods(http.MethodPost)
	router.HandleFunc("/api/items/{id}", h.GetItem).Methods(http.MethodGet)
	router.HandleFunc("/api/items/{id}", h.UpdateItem).Methods(http.MethodPut)
	router.HandleFunc("/api/items/{id}", h.DeleteItem).Methods(http.MethodDelete)
	router.HandleFunc("/api/stats", h.GetStats).Methods(http.MethodGet)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// ReadyCheck handles GET /ready requests. The server is ready when the
// collection can be read and the cache backend, if any, answers.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.catalog.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.String("component", "store"), zap.Error(err), requestIDField(r))
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready"})
		return
	}

	if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.String("component", "cache"), zap.Error(err), requestIDField(r))
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready"})
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListItems handles GET /api/items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r.URL.Query())
	if err != nil {
		h.handleError(w, r, err, "list items")
		return
	}

	h.serveCached(w, r, listCacheKey(params), func(ctx context.Context) ([]byte, error) {
		page, err := h.catalog.List(ctx, params)
		if err != nil {
			return nil, err
		}
		return json.Marshal(page)
	}, "list items")
}

// GetItem handles GET /api/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.handleError(w, r, err, "get item")
		return
	}

	item, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "get item")
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// CreateItem handles POST /api/items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	item, err := h.catalog.Create(r.Context(), input)
	if err != nil {
		h.handleError(w, r, err, "create item")
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/items/{id} requests. Fields absent from the
// body keep their stored values.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.handleError(w, r, err, "update item")
		return
	}

	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	item, err := h.catalog.Update(r.Context(), id, input)
	if err != nil {
		h.handleError(w, r, err, "update item")
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{id} requests.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.handleError(w, r, err, "delete item")
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.handleError(w, r, err, "delete item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats handles GET /api/stats requests.
func (h *RESTHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, statsCacheKey, func(ctx context.Context) ([]byte, error) {
		s, err := h.catalog.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(s)
	}, "get stats")
}

// NotFound handles requests that match no route.
func (h *RESTHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, model.ErrorResponse{
		Error: fmt.Sprintf("Route %s not found", r.URL.RequestURI()),
	})
}

// serveCached writes the response for key, computing it on a cache miss.
func (h *RESTHandler) serveCached(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	compute cache.ComputeFunc,
	operation string,
) {
	body, hit, err := h.cache.Fetch(r.Context(), key, compute)
	if err != nil {
		h.handleError(w, r, err, operation)
		return
	}

	if h.cache != nil {
		if hit {
			w.Header().Set(middleware.CacheHeader, cacheHit)
		} else {
			w.Header().Set(middleware.CacheHeader, cacheMiss)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err), requestIDField(r))
	}
}

// decodeInput reads an item body. It writes the error response itself and
// reports false when the body is unusable. The body must hold exactly one
// JSON value.
func (h *RESTHandler) decodeInput(w http.ResponseWriter, r *http.Request) (*model.ItemInput, bool) {
	var input model.ItemInput
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(&input)
	if err == nil {
		err = expectEOF(dec)
	}
	if err == nil {
		return &input, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.logger.Warn("request body too large", zap.Int64("limit", tooLarge.Limit), requestIDField(r))
		h.writeError(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge, nil)
		return nil, false
	}
	h.logger.Warn("invalid request body", zap.Error(err), requestIDField(r))
	h.writeError(w, http.StatusBadRequest, MsgInvalidBody, nil)
	return nil, false
}

// expectEOF reports errTrailingData when dec holds anything after the first
// value. A body over the size limit keeps its *http.MaxBytesError.
func expectEOF(dec *json.Decoder) error {
	err := dec.Decode(&struct{}{})
	if err == io.EOF {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return errTrailingData
}

// handleError maps service errors to HTTP responses.
func (h *RESTHandler) handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Debug("request rejected",
			zap.String("operation", operation),
			zap.Strings("violations", verr.Violations),
			requestIDField(r),
		)
		h.writeError(w, http.StatusBadRequest, verr.Message, verr.Violations)
	case errors.Is(err, catalog.ErrNotFound):
		h.writeError(w, http.StatusNotFound, MsgItemNotFound, nil)
	default:
		h.logger.Error("catalog operation failed",
			zap.String("operation", operation),
			zap.Error(err),
			requestIDField(r),
		)
		var details []string
		if h.errorDetails {
			details = []string{err.Error()}
		}
		h.writeError(w, http.StatusInternalServerError, MsgSomethingWrong, details)
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := respond.JSON(w, status, data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string, details []string) {
	if err := respond.Error(w, status, message, details); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

func requestIDField(r *http.Request) zap.Field {
	return zap.String("request_id", middleware.RequestIDFromContext(r.Context()))
}

// parseID reads the {id} path variable.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, model.NewParamError(MsgInvalidID)
	}
	return id, nil
}

// parseListParams reads the listing query string. Absent values take the
// query defaults.
func parseListParams(values url.Values) (query.Params, error) {
	page, err := parsePositive(values.Get("page"), query.MsgInvalidPage)
	if err != nil {
		return query.Params{}, err
	}

	limit, err := parsePositive(values.Get("limit"), query.MsgInvalidLimit)
	if err != nil {
		return query.Params{}, err
	}

	params := query.Params{
		Search:    values.Get("q"),
		SortField: values.Get("sort"),
		SortOrder: values.Get("order"),
		Page:      page,
		PageSize:  limit,
	}.WithDefaults()

	if err := params.Validate(); err != nil {
		return query.Params{}, err
	}
	return params, nil
}

func parsePositive(raw, message string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, model.NewParamError(message)
	}
	return n, nil
}

// listCacheKey returns a key that is identical for equivalent listing queries.
func listCacheKey(p query.Params) string {
	return itemsCacheKeyPrefix + url.Values{
		"q":     {p.Search},
		"sort":  {p.SortField},
		"order": {p.SortOrder},
		"page":  {strconv.Itoa(p.Page)},
		"limit": {strconv.Itoa(p.PageSize)},
	}.Encode()
}
