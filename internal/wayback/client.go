// Package wayback submits targets to the Wayback Machine save endpoint using
// gocolly.
package wayback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-debouncer/internal/archive"
	"github.com/JakeFAU/archive-debouncer/internal/metrics"
)

// DefaultEndpoint is the public save endpoint; the target is appended verbatim.
const DefaultEndpoint = "https://web.archive.org/save/"

const tracerName = "github.com/JakeFAU/archive-debouncer/internal/wayback"

// Config controls collector behavior.
type Config struct {
	Endpoint  string
	UserAgent string
	// Timeout bounds a single save request. Zero disables the limit.
	Timeout time.Duration
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Client implements archive.Archiver using the Colly collector.
type Client struct {
	cfg           Config
	recorder      archive.Recorder
	logger        *zap.Logger
	tracer        trace.Tracer
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// saveResult is filled in by the collector callbacks.
type saveResult struct {
	status int
	err    error
}

// New builds a Client writing its progress lines to recorder.
func New(cfg Config, recorder archive.Recorder, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Clones share the backend client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:           cfg,
		recorder:      recorder,
		logger:        logger,
		tracer:        cfg.TracerProvider.Tracer(tracerName),
		baseCollector: c,
	}
}

// SaveURL returns the URL requested to archive target.
func (c *Client) SaveURL(target string) string {
	return c.cfg.Endpoint + target
}

// Archive issues one GET to the save endpoint and reports whether it
// answered 200. It never returns an error; failures are recorded.
func (c *Client) Archive(ctx context.Context, target string) bool {
	ctx, span := c.tracer.Start(ctx, "wayback.save",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("archive.target", target)),
	)
	defer span.End()

	saveURL := c.SaveURL(target)
	c.recorder.Appendf("Starting archive request for: %s", target)

	start := time.Now()
	status, err := c.save(ctx, saveURL)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("archive request error",
			zap.String("target", target),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		metrics.ObserveArchiveRequest(target, "error")
		c.recorder.Appendf("Exception during archive request: %v", err)
		return false
	}

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status != http.StatusOK {
		span.SetStatus(codes.Error, http.StatusText(status))
		c.logger.Warn("archive request rejected",
			zap.String("target", target),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		)
		metrics.ObserveArchiveRequest(target, "rejected")
		c.recorder.Appendf("Archive request failed with status %d for: %s", status, target)
		return false
	}
	c.logger.Info("archive request succeeded",
		zap.String("target", target),
		zap.Duration("elapsed", elapsed),
	)
	metrics.ObserveArchiveRequest(target, "success")
	c.recorder.Appendf("Archive request successful for: %s", target)
	return true
}

func (c *Client) save(ctx context.Context, saveURL string) (int, error) {
	var result saveResult
	collector := c.buildCollector(ctx, &result)
	if err := c.runCollector(ctx, collector, saveURL, &result); err != nil {
		return 0, err
	}
	return result.status, nil
}

func (c *Client) buildCollector(ctx context.Context, result *saveResult) *colly.Collector {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.Context = ctx

	c.configureCollectorHooks(collector, result)
	return collector
}

func (c *Client) configureCollectorHooks(hooks collectorHooks, result *saveResult) {
	hooks.OnRequest(func(r *colly.Request) {
		c.logger.Debug("archive request sent", zap.String("url", r.URL.String()))
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.status = r.StatusCode
			return
		}
		result.err = err
	})
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, saveURL string, result *saveResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(saveURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("archive request canceled: %w", ctx.Err())
	case err := <-done:
		if result.err != nil {
			return result.err
		}
		if err != nil && result.status == 0 {
			return err
		}
		if result.status == 0 {
			return errors.New("no response received")
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
