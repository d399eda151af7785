// Package relay implements the protocol-compatibility pipeline between
// Messages-API clients and a stricter upstream endpoint.
package relay

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"claude-relay/internal/httpclient"
	"claude-relay/internal/types"
	"claude-relay/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const streamReadBufferSize = 4 * 1024

// hopHeaders are connection-level headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ErrorDetail is the inner error object of an upstream-shaped error body.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the error body shape Messages-API clients expect.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// Server relays Messages-API traffic to the configured upstream. The
// /v1/messages operation runs the full transform pipeline; every other /v1
// path is forwarded untouched.
type Server struct {
	configManager types.ConfigManager
	client        *http.Client
	streamClient  *http.Client
}

// NewServer creates a relay server. Two clients are drawn from the manager:
// a bounded one for buffered exchanges and one without an overall timeout
// for SSE streams, which may legitimately outlive any fixed deadline.
func NewServer(configManager types.ConfigManager, clientManager *httpclient.HTTPClientManager) *Server {
	upstream := configManager.GetUpstreamConfig()

	clientConfig := &httpclient.Config{
		ConnectTimeout:        time.Duration(upstream.ConnectTimeout) * time.Second,
		RequestTimeout:        time.Duration(upstream.RequestTimeout) * time.Second,
		IdleConnTimeout:       time.Duration(upstream.IdleConnTimeout) * time.Second,
		MaxIdleConns:          upstream.MaxIdleConns,
		MaxIdleConnsPerHost:   upstream.MaxIdleConnsPerHost,
		ResponseHeaderTimeout: time.Duration(upstream.ResponseHeaderTimeout) * time.Second,
		DisableCompression:    false,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ProxyURL:              upstream.ProxyURL,
	}

	streamConfig := *clientConfig
	streamConfig.RequestTimeout = 0
	// The transport must hand us raw bytes so SSE events arrive unbuffered
	streamConfig.DisableCompression = true

	return &Server{
		configManager: configManager,
		client:        clientManager.GetClient(clientConfig),
		streamClient:  clientManager.GetClient(&streamConfig),
	}
}

// Handle dispatches /v1/* requests: POST /v1/messages goes through the
// transform pipeline, everything else is transparent passthrough.
func (s *Server) Handle(c *gin.Context) {
	path := c.Param("path")
	if c.Request.Method == http.MethodPost && path == "/messages" {
		s.handleMessages(c)
		return
	}
	s.handlePassthrough(c)
}

// handleMessages relays a Messages-API request with full repair: request
// transform on the way out, response or stream repair on the way back.
func (s *Server) handleMessages(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	transformed := TransformRequest(body)
	isStream := gjson.GetBytes(transformed, "stream").Bool()

	client := s.client
	if isStream {
		client = s.streamClient
	}

	resp, err := s.forward(c, "/messages", transformed, client)
	if err != nil {
		logrus.WithError(err).Error("Upstream request failed")
		writeErrorResponse(c, http.StatusBadGateway, "api_error", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.relayRaw(c, resp)
		return
	}

	if isEventStream(resp) {
		s.relayStream(c, resp)
		return
	}
	s.relayBuffered(c, resp)
}

// handlePassthrough forwards any other /v1 request without body rewriting.
func (s *Server) handlePassthrough(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	resp, err := s.forward(c, c.Param("path"), body, s.streamClient)
	if err != nil {
		logrus.WithError(err).Error("Upstream request failed")
		writeErrorResponse(c, http.StatusBadGateway, "api_error", err.Error())
		return
	}
	defer resp.Body.Close()

	s.relayRaw(c, resp)
}

// forward sends the request to the upstream, preserving method, query, and
// filtered headers. A configured upstream credential replaces whatever the
// client sent.
func (s *Server) forward(c *gin.Context, path string, body []byte, client *http.Client) (*http.Response, error) {
	upstream := s.configManager.GetUpstreamConfig()

	targetURL := upstream.BaseURL + "/v1" + path
	if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
		targetURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	copyRequestHeaders(c.Request.Header, req.Header)
	req.Header.Del("Content-Length")

	if upstream.APIKey != "" {
		req.Header.Del("Authorization")
		req.Header.Set("X-Api-Key", upstream.APIKey)
	}

	logrus.WithFields(logrus.Fields{
		"method":     c.Request.Method,
		"path":       path,
		"request_id": c.GetString("requestID"),
	}).Debug("Forwarding request to upstream")

	return client.Do(req)
}

// relayStream pipes an SSE response through the stream relay, event by
// event. A mid-stream upstream error terminates the downstream stream
// silently; the client sees a truncated stream, never a synthetic event.
func (s *Server) relayStream(c *gin.Context, resp *http.Response) {
	copyResponseHeaders(resp.Header, c.Writer.Header())
	c.Writer.Header().Del("Content-Length")
	c.Status(resp.StatusCode)

	relay := NewStreamRelay(c.Writer)
	buf := make([]byte, streamReadBufferSize)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := relay.Write(buf[:n]); writeErr != nil {
				logrus.WithError(writeErr).Debug("Client disconnected during stream relay")
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				logrus.WithError(err).Error("Upstream stream read failed")
				return
			}
			break
		}
	}

	if err := relay.Close(); err != nil {
		logrus.WithError(err).Debug("Failed to flush trailing stream event")
	}
}

// relayBuffered reads a non-streaming response fully, decompresses it, and
// repairs double-encoded tool arguments before responding.
func (s *Server) relayBuffered(c *gin.Context, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.WithError(err).Error("Failed to read upstream response")
		writeErrorResponse(c, http.StatusBadGateway, "api_error", "failed to read upstream response")
		return
	}

	decompressed, _ := utils.DecompressResponse(resp.Header.Get("Content-Encoding"), body)
	repaired := RepairResponseBody(decompressed)

	copyResponseHeaders(resp.Header, c.Writer.Header())
	c.Writer.Header().Del("Content-Encoding")
	c.Writer.Header().Del("Content-Length")
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), repaired)
}

// relayRaw passes an upstream response through byte for byte.
func (s *Server) relayRaw(c *gin.Context, resp *http.Response) {
	copyResponseHeaders(resp.Header, c.Writer.Header())
	c.Status(resp.StatusCode)

	buf := make([]byte, streamReadBufferSize)
	flusher, _ := c.Writer.(http.Flusher)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				logrus.WithError(err).Debug("Upstream read ended unexpectedly during passthrough")
			}
			return
		}
	}
}

func isEventStream(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
}

func copyRequestHeaders(src, dst http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func copyResponseHeaders(src, dst http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(key) == h {
			return true
		}
	}
	return false
}

// writeErrorResponse emits an upstream-shaped error body so clients parse
// relay failures the same way they parse upstream failures.
func writeErrorResponse(c *gin.Context, status int, errType, message string) {
	c.JSON(status, ErrorResponse{
		Type: "error",
		Error: ErrorDetail{
			Type:    errType,
			Message: message,
		},
	})
}
