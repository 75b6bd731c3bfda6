package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"

	"credpass/pkg/platform/circuit"
	"credpass/pkg/platform/tracer"
)

const (
	// MaxObjectSize bounds fetched and uploaded objects.
	MaxObjectSize = 2 << 20
	// chunkSize is the default IPFS chunker size; objects up to this size
	// are stored as a single raw leaf whose CID CIDFor reproduces.
	chunkSize = 256 << 10
	// DefaultCacheSize bounds the bytes held by the fetch cache.
	DefaultCacheSize = 64 << 20
)

// Gateway fetches through an HTTP gateway and uploads through an IPFS
// node's HTTP API. Fetched objects are kept in a byte-bounded LRU since
// content under a CID never changes; the cache is consulted first while the
// circuit is open.
type Gateway struct {
	gatewayURL string
	apiURL     string
	client     *http.Client
	breaker    *circuit.Breaker
	metrics    *Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger

	cacheSize uint64
	cache     *lru.SizeConstrainedCache[string, []byte]
}

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithAPIURL enables uploads through the node API at url.
func WithAPIURL(url string) GatewayOption {
	return func(g *Gateway) {
		g.apiURL = strings.TrimRight(url, "/")
	}
}

// WithCacheSize bounds the fetch cache to size bytes. Zero disables caching.
func WithCacheSize(size uint64) GatewayOption {
	return func(g *Gateway) {
		g.cacheSize = size
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithBreaker replaces the default breaker (5 failures, 30s cooldown).
func WithBreaker(b *circuit.Breaker) GatewayOption {
	return func(g *Gateway) {
		if b != nil {
			g.breaker = b
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) GatewayOption {
	return func(g *Gateway) {
		g.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway creates a gateway-backed Storage.
func NewGateway(gatewayURL string, opts ...GatewayOption) *Gateway {
	if gatewayURL == "" {
		gatewayURL = DefaultGateway
	}
	g := &Gateway{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		client:     &http.Client{Timeout: 15 * time.Second},
		breaker:    circuit.New("ipfs_gateway"),
		tracer:     tracer.NewNoop(),
		logger:     slog.Default(),
		cacheSize:  DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cache = lru.NewSizeConstrainedCache[string, []byte](g.cacheSize)
	return g
}

// Get fetches and verifies the object named by uri.
func (g *Gateway) Get(ctx context.Context, uri string) (data []byte, err error) {
	id, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	ctx, span := g.tracer.Start(ctx, tracer.SpanMetadataFetch, tracer.String(tracer.AttrURI, uri))
	defer func() { span.End(err) }()

	key := id.KeyString()
	if cached, ok := g.cached(key); ok {
		span.AddEvent("cache.hit")
		return cached, nil
	}
	if !g.breaker.Allow() {
		span.AddEvent("circuit.open")
		return nil, Unavailable(uri, circuit.ErrOpen)
	}

	body, err := g.fetch(ctx, g.gatewayURL+"/ipfs/"+id.String())
	if err == nil {
		err = Verify(id, body)
	}
	if err != nil {
		g.recordFailure(ctx, "get", err)
		return nil, Unavailable(uri, err)
	}
	g.recordSuccess(ctx)

	if uint64(len(body)) <= g.cacheSize {
		g.cache.Add(key, body)
	}
	return append([]byte(nil), body...), nil
}

// Put uploads data and returns its ipfs:// URI.
func (g *Gateway) Put(ctx context.Context, data []byte) (uri string, err error) {
	ctx, span := g.tracer.Start(ctx, tracer.SpanMetadataPut, tracer.Int64("bytes", int64(len(data))))
	defer func() { span.End(err) }()

	if g.apiURL == "" {
		return "", Unavailable("", errors.New("upload api not configured"))
	}
	if len(data) > MaxObjectSize {
		return "", fmt.Errorf("object of %d bytes exceeds %d byte limit", len(data), MaxObjectSize)
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.apiURL+"/api/v0/add?cid-version=1&raw-leaves=true&pin=true", &form)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		g.recordFailure(ctx, "put", err)
		return "", Unavailable("", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ipfs add returned %d", resp.StatusCode)
		g.recordFailure(ctx, "put", err)
		return "", Unavailable("", err)
	}

	var added struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&added); err != nil {
		g.recordFailure(ctx, "put", err)
		return "", Unavailable("", fmt.Errorf("decode ipfs add response: %w", err))
	}
	g.recordSuccess(ctx)

	uri = Scheme + added.Hash
	if len(data) <= chunkSize {
		want, err := URIFor(data)
		if err != nil {
			return "", err
		}
		if want != uri {
			return "", fmt.Errorf("ipfs add returned %s, expected %s", uri, want)
		}
	}
	return uri, nil
}

func (g *Gateway) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxObjectSize {
		return nil, fmt.Errorf("object exceeds %d byte limit", MaxObjectSize)
	}
	return body, nil
}

func (g *Gateway) cached(key string) ([]byte, bool) {
	data, ok := g.cache.Get(key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func (g *Gateway) recordFailure(ctx context.Context, op string, err error) {
	if g.metrics != nil {
		g.metrics.IncFailure(op)
	}
	if g.breaker.RecordFailure().Opened {
		g.logger.ErrorContext(ctx, "circuit breaker opened", "circuit", g.breaker.Name(), "error", err)
	}
}

func (g *Gateway) recordSuccess(ctx context.Context) {
	if g.breaker.RecordSuccess().Closed {
		g.logger.InfoContext(ctx, "circuit breaker closed", "circuit", g.breaker.Name())
	}
}

var _ Storage = (*Gateway)(nil)
