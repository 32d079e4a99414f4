// Package server exposes the inference pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"physio-predictor/internal/common"
	"physio-predictor/internal/parser"
	"physio-predictor/internal/pipeline"
	"physio-predictor/internal/report"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Options configure the HTTP surface.
type Options struct {
	Port           int
	MaxUploadBytes int64
	MetricsEnabled bool
	Gatherer       prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

// Server serves uploads and health information.
type Server struct {
	pipeline *pipeline.Pipeline
	opts     Options
	engine   *gin.Engine
	server   *http.Server
}

// ErrorBody is the JSON body of a failed request.
type ErrorBody struct {
	Error        string             `json:"error"`
	Message      string             `json:"message"`
	RequestID    string             `json:"request_id,omitempty"`
	Stage        pipeline.Stage     `json:"stage,omitempty"`
	InvalidCells []parser.CellError `json:"invalid_cells,omitempty"`
}

// New creates a server for p.
func New(p *pipeline.Pipeline, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = common.DefaultMaxUploadBytes
	}
	if opts.Port == 0 {
		opts.Port = common.DefaultPort
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{pipeline: p, opts: opts}

	router := gin.New()
	router.Use(RequestID())
	router.Use(Logger())
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	if opts.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/predict", s.handlePredict)
		v1.GET("/model/info", s.handleModelInfo)
	}
	s.engine = router

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting prediction server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	info := s.pipeline.Artifacts().Info()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"backend":   info.Backend,
		"classes":   len(info.Classes),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleModelInfo(c *gin.Context) {
	info := s.pipeline.Artifacts().Info()
	opts := s.pipeline.Options()
	c.JSON(http.StatusOK, gin.H{
		"model":          info,
		"expected_shape": opts.Expected,
		"top_k":          opts.TopK,
		"strict_cells":   opts.StrictCells,
		"extensions":     common.AllowedExtensions,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			s.respondError(c, http.StatusRequestEntityTooLarge, "too_large", s.tooLargeMessage(), requestID)
			return
		}
		s.respondError(c, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required", requestID)
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtension(ext) {
		s.respondError(c, http.StatusUnsupportedMediaType, "unsupported_type",
			fmt.Sprintf("file type %q not accepted, upload one of %s", ext, strings.Join(common.AllowedExtensions, ", ")), requestID)
		return
	}
	if fh.Size > s.opts.MaxUploadBytes {
		s.respondError(c, http.StatusRequestEntityTooLarge, "too_large", s.tooLargeMessage(), requestID)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, "unreadable", "uploaded file could not be read", requestID)
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, s.opts.MaxUploadBytes))
	if err != nil {
		s.respondError(c, http.StatusBadRequest, "unreadable", "uploaded file could not be read", requestID)
		return
	}

	ctx := pipeline.WithRequestID(c.Request.Context(), requestID)
	res, err := s.pipeline.Run(ctx, raw)
	if err != nil {
		mapped := MapError(err)
		body := ErrorBody{
			Error:     mapped.Code,
			Message:   mapped.Message,
			RequestID: requestID,
			Stage:     res.Stage,
		}
		var cells *pipeline.InvalidCellsError
		if errors.As(err, &cells) {
			body.InvalidCells = cells.Cells
		}
		c.JSON(mapped.StatusCode, body)
		return
	}

	rep := report.NewReporter(res, fh.Filename)
	if c.Query("format") == "text" {
		c.String(http.StatusOK, rep.Text())
		return
	}
	c.JSON(http.StatusOK, rep.Response())
}

// multipartOverhead leaves room for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 16 << 10

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("file exceeds the %d byte upload limit", s.opts.MaxUploadBytes)
}

func (s *Server) respondError(c *gin.Context, status int, code, message, requestID string) {
	c.JSON(status, ErrorBody{Error: code, Message: message, RequestID: requestID})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func allowedExtension(ext string) bool {
	for _, a := range common.AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}
