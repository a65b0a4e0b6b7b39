//go:build functional

// Package functional provides functional tests for the catalog REST API and item event feed.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/inventory-catalog/internal/cache"
	"github.com/vyrodovalexey/inventory-catalog/internal/catalog"
	"github.com/vyrodovalexey/inventory-catalog/internal/config"
	"github.com/vyrodovalexey/inventory-catalog/internal/handler"
	"github.com/vyrodovalexey/inventory-catalog/internal/model"
	"github.com/vyrodovalexey/inventory-catalog/internal/query"
	"github.com/vyrodovalexey/inventory-catalog/internal/server"
	"github.com/vyrodovalexey/inventory-catalog/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestServerPort    = "TEST_SERVER_PORT"
	EnvTestTimeout       = "TEST_TIMEOUT"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
)

// Default test configuration values.
const (
	DefaultTestHost         = "localhost"
	DefaultTestPort         = 0 // 0 means auto-assign
	DefaultTestTimeout      = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultMetricsEnabled   = false
)

// TestConfig holds test configuration loaded from environment.
type TestConfig struct {
	Host           string
	Port           int
	Timeout        time.Duration
	MetricsEnabled bool
}

// LoadTestConfig loads test configuration from environment variables.
func LoadTestConfig() *TestConfig {
	cfg := &TestConfig{
		Host:           DefaultTestHost,
		Port:           DefaultTestPort,
		Timeout:        DefaultTestTimeout,
		MetricsEnabled: DefaultMetricsEnabled,
	}

	if host := os.Getenv(EnvTestServerHost); host != "" {
		cfg.Host = host
	}

	if portStr := os.Getenv(EnvTestServerPort); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}

	if timeoutStr := os.Getenv(EnvTestTimeout); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	if metricsStr := os.Getenv(EnvTestMetricsEnable); metricsStr != "" {
		if enabled, err := strconv.ParseBool(metricsStr); err == nil {
			cfg.MetricsEnabled = enabled
		}
	}

	return cfg
}

// ServerOption adjusts the test server before it is built.
type ServerOption func(*serverOptions)

type serverOptions struct {
	cache       bool
	fileLock    bool
	environment string
	seed        []model.Item
}

// WithResponseCache enables the in-memory response cache.
func WithResponseCache() ServerOption {
	return func(o *serverOptions) { o.cache = true }
}

// WithFileLock guards writes with the advisory file lock.
func WithFileLock() ServerOption {
	return func(o *serverOptions) { o.fileLock = true }
}

// WithEnvironment sets the server environment.
func WithEnvironment(env string) ServerOption {
	return func(o *serverOptions) { o.environment = env }
}

// WithSeed writes items to the data file before the server starts.
func WithSeed(items ...model.Item) ServerOption {
	return func(o *serverOptions) { o.seed = items }
}

// TestServer wraps the server for testing purposes.
type TestServer struct {
	Server   *server.Server
	Store    *store.FileStore
	Events   *handler.WebSocketHandler
	DataPath string
	BaseURL  string
	WSURL    string
	Port     int
	listener net.Listener
	t        *testing.T
	mu       sync.Mutex
	started  bool
}

// NewTestServer creates a new test server backed by a JSON file in a temporary directory.
func NewTestServer(t *testing.T, opts ...ServerOption) *TestServer {
	t.Helper()

	options := serverOptions{environment: "production"}
	for _, opt := range opts {
		opt(&options)
	}

	testCfg := LoadTestConfig()

	// Find an available port
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", testCfg.Host, testCfg.Port))
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	dataPath := filepath.Join(t.TempDir(), "data", "items.json")

	cfg := &config.Config{
		ServerPort:      port,
		LogLevel:        "error",
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  testCfg.MetricsEnabled,
		Environment:     options.environment,
		CORSOrigins:     []string{"http://localhost:3000"},
		MaxBodyBytes:    config.DefaultMaxBodyBytes,
		DataPath:        dataPath,
		StoreBackend:    store.BackendJSON,
		FileLockEnabled: options.fileLock,
		CacheTTL:        time.Minute,
		SortLocale:      "en",
	}

	// Use nop logger for tests to reduce noise
	logger := zap.NewNop()

	fileStore, err := store.NewFileStore(dataPath)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	if len(options.seed) > 0 {
		if err := fileStore.SaveAll(context.Background(), options.seed); err != nil {
			t.Fatalf("Failed to seed store: %v", err)
		}
	}

	events := handler.NewWebSocketHandler(logger, nil)

	var locker catalog.Locker = catalog.NewMutexLocker()
	if options.fileLock {
		locker = catalog.NewFileLocker(cfg.LockPath())
	}

	svc := catalog.NewService(fileStore, logger,
		catalog.WithLocker(locker),
		catalog.WithEngine(query.NewEngine(language.English)),
		catalog.WithNotifier(events),
	)

	var responseCache *cache.ResponseCache
	if options.cache {
		responseCache = cache.NewResponseCache(cache.NewMemoryBackend(), svc.LastModified, cfg.CacheTTL, logger)
	}

	srv := server.New(cfg, logger, server.Deps{
		Catalog: svc,
		Cache:   responseCache,
		Events:  events,
	})

	return &TestServer{
		Server:   srv,
		Store:    fileStore,
		Events:   events,
		DataPath: dataPath,
		BaseURL:  fmt.Sprintf("http://%s:%d", testCfg.Host, port),
		WSURL:    fmt.Sprintf("ws://%s:%d", testCfg.Host, port),
		Port:     port,
		listener: listener,
		t:        t,
	}
}

// Start starts the test server.
func (ts *TestServer) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return
	}

	// Close the listener we used to find the port
	ts.listener.Close()

	go func() {
		if err := ts.Server.Start(); err != nil && err != http.ErrServerClosed {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	ts.waitForReady()
	ts.started = true
}

// waitForReady waits for the server to be ready to accept connections.
func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + "/ready")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop stops the test server.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}

	ts.started = false
}

// ReadDataFile returns the items currently persisted in the data file.
func (ts *TestServer) ReadDataFile() []model.Item {
	ts.t.Helper()

	raw, err := os.ReadFile(ts.DataPath)
	if err != nil {
		ts.t.Fatalf("Failed to read data file: %v", err)
	}
	var items []model.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		ts.t.Fatalf("Failed to decode data file: %v", err)
	}
	return items
}

// HTTPClient provides a configured HTTP client for tests.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	t       *testing.T
}

// NewHTTPClient creates a new HTTP client for testing.
func NewHTTPClient(t *testing.T, baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		baseURL: baseURL,
		t:       t,
	}
}

// Request represents an HTTP request configuration.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do executes an HTTP request and returns the response.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		switch v := req.Body.(type) {
		case string:
			bodyReader = bytes.NewBufferString(v)
		case []byte:
			bodyReader = bytes.NewBuffer(v)
		default:
			jsonBody, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewBuffer(jsonBody)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    path,
		Headers: headers,
	})
}

// Post performs a POST request.
func (c *HTTPClient) Post(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    body,
		Headers: headers,
	})
}

// Put performs a PUT request.
func (c *HTTPClient) Put(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodPut,
		Path:    path,
		Body:    body,
		Headers: headers,
	})
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodDelete,
		Path:    path,
		Headers: headers,
	})
}

// Decode unmarshals a response body into T.
func Decode[T any](t *testing.T, resp *Response) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", string(resp.Body), err)
	}
	return v
}

// MustCreate creates an item and fails the test unless the server returns 201.
func MustCreate(ctx context.Context, t *testing.T, c *HTTPClient, name, category string, price float64) model.Item {
	t.Helper()

	resp, err := c.Post(ctx, "/api/items", map[string]any{
		"name":     name,
		"category": category,
		"price":    price,
	}, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusCreated)
	return Decode[model.Item](t, resp)
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// AssertHeader asserts that the response has the expected header value.
func AssertHeader(t *testing.T, resp *Response, key, expected string) {
	t.Helper()
	actual := resp.Headers.Get(key)
	if actual != expected {
		t.Errorf("Expected header %s to be %q, got %q", key, expected, actual)
	}
}

// AssertError asserts the error message of an error response.
func AssertError(t *testing.T, resp *Response, expected string) model.ErrorResponse {
	t.Helper()
	errResp := Decode[model.ErrorResponse](t, resp)
	if errResp.Error != expected {
		t.Errorf("Expected error %q, got %q", expected, errResp.Error)
	}
	return errResp
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
