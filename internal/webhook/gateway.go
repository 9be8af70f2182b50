package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/telemetry"
	"go.uber.org/zap"
)

// Enqueuer is the job-service entry point the gateway and dispatcher use.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts dto.EnqueueOptions) (string, error)
}

// EventLedger admits each inbound event ID once per retention window. Admit
// calls enqueue only for an ID it does not hold and keeps the ID only when
// enqueue succeeds. admitted is true with a non-nil error when the job was
// enqueued but the ID could not be confirmed.
type EventLedger interface {
	Admit(ctx context.Context, eventID, eventType string, enqueue func(context.Context) (string, error)) (jobID string, admitted bool, err error)
}

// Stable rejection codes returned to inbound callers.
const (
	CodeIPNotAllowed     = "ip_not_allowed"
	CodeUnsupportedMedia = "unsupported_media_type"
	CodeEmptyBody        = "empty_body"
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidEvent     = "invalid_event"
	CodeInvalidTimestamp = "invalid_timestamp"
	CodeMissingSignature = "missing_signature"
	CodeInvalidSignature = "invalid_signature"
	CodeStaleTimestamp   = "stale_timestamp"
	CodeFutureTimestamp  = "future_timestamp"
	CodePayloadTooLarge  = "payload_too_large"
)

const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
)

type GatewayConfig struct {
	ValidateSignature bool
	Secret            string
	ClockSkew         time.Duration
	IPWhitelist       []string
}

// InboundRequest is the transport-neutral view of one inbound delivery.
type InboundRequest struct {
	Body        []byte
	ContentType string
	// Signature comes from the X-Signature header and wins over a signature
	// field in the body.
	Signature string
	RemoteIP  string
}

type Receipt struct {
	EventID    string    `json:"event_id"`
	Event      string    `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
	Duplicate  bool      `json:"duplicate,omitempty"`
	JobID      string    `json:"-"`
}

// Gateway validates, authenticates and deduplicates inbound events before
// turning each new one into a process_webhook_event job.
type Gateway struct {
	cfg     GatewayConfig
	allow   []*net.IPNet
	ledger  EventLedger
	jobs    Enqueuer
	log     *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewGateway(cfg GatewayConfig, ledger EventLedger, jobs Enqueuer, log *zap.Logger, metrics *telemetry.Metrics) (*Gateway, error) {
	allow, err := parseWhitelist(cfg.IPWhitelist)
	if err != nil {
		return nil, err
	}
	if cfg.ValidateSignature && cfg.Secret == "" {
		return nil, fmt.Errorf("webhook secret is required when signature validation is enabled")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Gateway{
		cfg:     cfg,
		allow:   allow,
		ledger:  ledger,
		jobs:    jobs,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Receive runs the inbound checks in order and enqueues the event. Rejections
// are common.APIError values carrying a stable code; a duplicate event is a
// successful Receipt with Duplicate set.
func (g *Gateway) Receive(ctx context.Context, req InboundRequest) (*Receipt, error) {
	receipt, eventType, err := g.receive(ctx, req)
	if err != nil {
		code := "internal_error"
		var apiErr common.APIError
		if errors.As(err, &apiErr) && apiErr.Code != "" {
			code = apiErr.Code
		}
		g.metrics.Inbound(ctx, code)
		g.log.Warn("inbound webhook rejected",
			zap.String("code", code),
			zap.String("remote_ip", req.RemoteIP),
			zap.String("event", eventType),
			zap.Error(err),
		)
		return nil, err
	}

	result := resultAccepted
	if receipt.Duplicate {
		result = resultDuplicate
	}
	g.metrics.Inbound(ctx, result)
	g.log.Info("inbound webhook received",
		zap.String("event_id", receipt.EventID),
		zap.String("event", receipt.Event),
		zap.Bool("duplicate", receipt.Duplicate),
		zap.String("job_id", receipt.JobID),
	)
	return receipt, nil
}

func (g *Gateway) receive(ctx context.Context, req InboundRequest) (*Receipt, string, error) {
	if !g.allowed(req.RemoteIP) {
		return nil, "", reject(http.StatusForbidden, CodeIPNotAllowed, "source address not allowed")
	}

	mediaType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil || mediaType != "application/json" {
		return nil, "", reject(http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "content type must be application/json")
	}

	if len(bytes.TrimSpace(req.Body)) == 0 {
		return nil, "", reject(http.StatusBadRequest, CodeEmptyBody, "request body is empty")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.Body, &fields); err != nil || fields == nil {
		return nil, "", reject(http.StatusBadRequest, CodeInvalidJSON, "body must be a JSON object")
	}

	var event string
	if raw, ok := fields["event"]; !ok || json.Unmarshal(raw, &event) != nil || strings.TrimSpace(event) == "" {
		return nil, "", reject(http.StatusBadRequest, CodeInvalidEvent, "event must be a non-empty string")
	}

	var ts int64
	if raw, ok := fields["timestamp"]; !ok || json.Unmarshal(raw, &ts) != nil || ts <= 0 {
		return nil, event, reject(http.StatusBadRequest, CodeInvalidTimestamp, "timestamp must be a positive integer of Unix seconds")
	}

	data, ok := fields["data"]
	if !ok || !isObject(data) {
		return nil, event, reject(http.StatusBadRequest, CodeInvalidEvent, "data must be a JSON object")
	}

	if g.cfg.ValidateSignature {
		if err := g.checkSignature(req, fields); err != nil {
			return nil, event, err
		}
	}

	now := g.now()
	if err := g.checkTimestamp(ts, now); err != nil {
		return nil, event, err
	}

	eventID, err := eventIDOf(fields, event, ts, data)
	if err != nil {
		return nil, event, err
	}

	receipt := &Receipt{EventID: eventID, Event: event, ReceivedAt: now}

	jobID, admitted, err := g.ledger.Admit(ctx, eventID, event, func(ctx context.Context) (string, error) {
		return g.jobs.Enqueue(ctx, config.JobTypeProcessWebhookEvent, dto.ProcessWebhookEventPayload{
			EventID:    eventID,
			Event:      event,
			Timestamp:  ts,
			Data:       data,
			ReceivedAt: now,
		}, dto.EnqueueOptions{})
	})
	switch {
	case err != nil && !admitted:
		return nil, event, fmt.Errorf("admit inbound event %s: %w", eventID, err)
	case err != nil:
		g.log.Warn("inbound event enqueued but not confirmed",
			zap.String("event_id", eventID), zap.String("job_id", jobID), zap.Error(err))
	case !admitted:
		receipt.Duplicate = true
		return receipt, event, nil
	}

	receipt.JobID = jobID
	return receipt, event, nil
}

func (g *Gateway) checkSignature(req InboundRequest, fields map[string]json.RawMessage) error {
	signature := strings.TrimSpace(req.Signature)
	signed := req.Body

	if signature == "" {
		raw, ok := fields["signature"]
		if !ok || json.Unmarshal(raw, &signature) != nil || signature == "" {
			return reject(http.StatusUnauthorized, CodeMissingSignature, "signature is required")
		}
		canonical, err := canonicalWithout(fields, "signature")
		if err != nil {
			return err
		}
		signed = canonical
	}

	if !Verify(g.cfg.Secret, signed, signature) {
		return reject(http.StatusUnauthorized, CodeInvalidSignature, "signature does not match")
	}
	return nil
}

func (g *Gateway) checkTimestamp(ts int64, now time.Time) error {
	if g.cfg.ClockSkew <= 0 {
		return nil
	}
	sent := time.Unix(ts, 0)
	switch {
	case sent.Before(now.Add(-g.cfg.ClockSkew)):
		return reject(http.StatusUnprocessableEntity, CodeStaleTimestamp, "timestamp is older than the allowed clock skew")
	case sent.After(now.Add(g.cfg.ClockSkew)):
		return reject(http.StatusUnprocessableEntity, CodeFutureTimestamp, "timestamp is further ahead than the allowed clock skew")
	}
	return nil
}

func (g *Gateway) allowed(remoteIP string) bool {
	if len(g.allow) == 0 {
		return true
	}
	ip := net.ParseIP(remoteIP)
	if ip == nil {
		return false
	}
	for _, n := range g.allow {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// eventIDOf returns the caller's event_id, or a hash of event, timestamp and
// data when none was sent.
func eventIDOf(fields map[string]json.RawMessage, event string, ts int64, data json.RawMessage) (string, error) {
	if raw, ok := fields["event_id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || strings.TrimSpace(id) == "" || len(id) > 255 {
			return "", reject(http.StatusBadRequest, CodeInvalidEvent, "event_id must be a non-empty string of at most 255 characters")
		}
		return id, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return "", reject(http.StatusBadRequest, CodeInvalidJSON, "data is not valid JSON")
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\n%d\n%s", event, ts, compact.Bytes()))
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func parseWhitelist(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid whitelist IP %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid whitelist CIDR %q: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func reject(status int, code, message string) common.APIError {
	return common.Coded(status, code, message)
}
