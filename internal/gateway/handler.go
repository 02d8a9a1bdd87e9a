package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/conversation"
	"github.com/af-corp/copilot-relay/internal/filter"
	"github.com/af-corp/copilot-relay/internal/filter/policy"
	"github.com/af-corp/copilot-relay/internal/filter/secrets"
	"github.com/af-corp/copilot-relay/internal/httputil"
	"github.com/af-corp/copilot-relay/internal/openapi"
	"github.com/af-corp/copilot-relay/internal/relay"
	"github.com/af-corp/copilot-relay/internal/telemetry"
	"github.com/af-corp/copilot-relay/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler holds dependencies for the relay HTTP handlers.
type Handler struct {
	relay       *relay.Service
	cfg         func() *config.Config
	filterChain *filter.Chain
	store       conversation.Store
	metrics     *telemetry.Metrics
	validate    *validator.Validate
	logger      *slog.Logger
}

type Option func(*Handler)

func WithFilterChain(c *filter.Chain) Option { return func(h *Handler) { h.filterChain = c } }

// WithStore enables transcript recording and the conversation routes.
func WithStore(s conversation.Store) Option { return func(h *Handler) { h.store = s } }

func WithMetrics(m *telemetry.Metrics) Option { return func(h *Handler) { h.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }

func NewHandler(svc *relay.Service, cfg func() *config.Config, opts ...Option) *Handler {
	h := &Handler{
		relay:    svc,
		cfg:      cfg,
		validate: newValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// relayBody is implemented by the three endpoint request bodies.
type relayBody interface {
	Relay() *types.RelayRequest
}

var errEmptyBody = errors.New("request body is required")

// Generate handles POST /generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if req, ok := decodeRelay[types.GenerateRequest](h, w, r); ok {
		h.serveRelay(w, r, req)
	}
}

// Explain handles POST /explain
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	if req, ok := decodeRelay[types.ExplainRequest](h, w, r); ok {
		h.serveRelay(w, r, req)
	}
}

// Debug handles POST /debug
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	if req, ok := decodeRelay[types.DebugRequest](h, w, r); ok {
		h.serveRelay(w, r, req)
	}
}

func decodeRelay[T relayBody](h *Handler, w http.ResponseWriter, r *http.Request) (*types.RelayRequest, bool) {
	reqID := httputil.RequestIDFrom(r.Context())

	var body T
	if err := h.decodeJSON(w, r, &body); err != nil {
		httputil.WriteValidationError(w, reqID, err.Error())
		return nil, false
	}
	if err := h.validate.Struct(body); err != nil {
		httputil.WriteValidationError(w, reqID, validationMessage(err))
		return nil, false
	}
	return body.Relay(), true
}

// decodeJSON reads the request body, bounded by server.max_body_bytes, into
// dest. A blank body yields errEmptyBody.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	limit := int64(1 << 20)
	if cfg := h.cfg(); cfg != nil && cfg.Server.MaxBodyBytes > 0 {
		limit = cfg.Server.MaxBodyBytes
	}
	defer r.Body.Close()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (h *Handler) serveRelay(w http.ResponseWriter, r *http.Request, req *types.RelayRequest) {
	ctx := r.Context()
	req.RequestID = httputil.RequestIDFrom(ctx)
	req.ReceivedAt = time.Now()

	if err := h.relay.Prepare(req); err != nil {
		h.writeRelayError(w, req, err)
		return
	}

	// Run pre-dispatch filters (secrets, policy)
	if h.filterChain != nil {
		results, blocked := h.filterChain.Run(ctx, req)
		if blocked != nil {
			h.logger.Warn("request blocked by filter",
				"request_id", req.RequestID,
				"task", string(req.Task),
				"filter", blocked.FilterName,
				"detections", blocked.Detections,
			)
			if h.metrics != nil {
				h.metrics.RecordFilterAction(blocked.FilterName, string(blocked.Action))
			}
			code := blocked.Code
			if code == "" {
				code = policy.CodePolicyDenied
			}
			status := filterStatus(code)
			h.recordRequest(req, status, code, nil)
			httputil.WriteError(w, req.RequestID, status, code, blocked.Message)
			return
		}
		for _, fr := range results {
			if fr.Action == filter.ActionFlag && h.metrics != nil {
				h.metrics.RecordFilterAction(fr.FilterName, "flag")
			}
		}
	}

	resp, err := h.relay.Relay(ctx, req)
	if err != nil {
		h.writeRelayError(w, req, err)
		return
	}

	h.recordTranscript(r, req, resp)

	prompt, completion, total := resp.Usage.Tokens()
	h.logger.Info("relay completed",
		"request_id", req.RequestID,
		"task", string(req.Task),
		"model_requested", req.UpstreamModel,
		"model_served", resp.Model,
		"prompt_tokens", prompt,
		"completion_tokens", completion,
		"total_tokens", total,
		"duration_ms", time.Since(req.ReceivedAt).Milliseconds(),
		"status_code", http.StatusOK,
	)
	h.recordRequest(req, http.StatusOK, "", resp)

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeRelayError(w http.ResponseWriter, req *types.RelayRequest, err error) {
	re := relay.AsError(err)
	status := relay.StatusFor(re.Code)

	attrs := []any{
		"request_id", req.RequestID,
		"task", string(req.Task),
		"model", req.UpstreamModel,
		"code", re.Code,
		"status_code", status,
		"duration_ms", time.Since(req.ReceivedAt).Milliseconds(),
	}
	if re.Err != nil {
		attrs = append(attrs, "error", re.Err)
	}
	h.logger.Error("relay failed", attrs...)
	h.recordRequest(req, status, re.Code, nil)

	httputil.WriteError(w, req.RequestID, status, re.Code, re.Message)
}

// recordTranscript appends the exchange to its conversation. Failures are
// logged and never fail the relay call.
func (h *Handler) recordTranscript(r *http.Request, req *types.RelayRequest, resp *types.AIResponse) {
	if req.ConversationID == "" {
		return
	}
	if h.store == nil {
		h.logger.Debug("conversationId ignored, store disabled", "request_id", req.RequestID)
		return
	}
	ctx := r.Context()
	for _, m := range []types.Message{
		{Role: "user", Content: req.Prompt},
		{Role: "assistant", Content: resp.Content},
	} {
		if _, err := h.store.Append(ctx, req.ConversationID, m.Role, m.Content); err != nil {
			h.logger.Warn("failed to record transcript",
				"request_id", req.RequestID,
				"conversation_id", req.ConversationID,
				"error", err,
			)
			if h.metrics != nil {
				h.metrics.RecordTranscriptError()
			}
			return
		}
	}
}

func (h *Handler) recordRequest(req *types.RelayRequest, status int, code string, resp *types.AIResponse) {
	if h.metrics == nil {
		return
	}
	labels := telemetry.RequestLabels{
		Task:       string(req.Task),
		Model:      req.UpstreamModel,
		Status:     strconv.Itoa(status),
		Code:       code,
		DurationMs: float64(time.Since(req.ReceivedAt).Milliseconds()),
	}
	if resp != nil {
		labels.PromptTokens, labels.CompletionTokens, _ = resp.Usage.Tokens()
	}
	h.metrics.RecordRequest(labels)
}

func filterStatus(code string) int {
	if code == secrets.CodeSecretDetected {
		return http.StatusUnprocessableEntity
	}
	return http.StatusForbidden
}

type messageResponse struct {
	Message string `json:"message"`
}

// Health handles GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Healthy"})
}

// Hello handles GET /api/hello
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Hello from the copilot relay"})
}

// OpenAPI handles GET /openapi.json
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, openapi.Document())
}

type createConversationRequest struct {
	Title *string `json:"title"`
}

type messageListResponse struct {
	Messages []conversation.Message `json:"messages"`
}

// CreateConversation handles POST /conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFrom(r.Context())
	if h.store == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Conversation store is disabled")
		return
	}

	var body createConversationRequest
	if r.ContentLength != 0 {
		if err := h.decodeJSON(w, r, &body); err != nil && !errors.Is(err, errEmptyBody) {
			httputil.WriteValidationError(w, reqID, err.Error())
			return
		}
	}

	c, err := h.store.Create(r.Context(), body.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to create conversation")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

// GetConversation handles GET /conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFrom(r.Context())
	if h.store == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Conversation store is disabled")
		return
	}

	c, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// ListMessages handles GET /conversations/{id}/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFrom(r.Context())
	if h.store == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Conversation store is disabled")
		return
	}

	msgs, err := h.store.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, reqID, err)
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	httputil.WriteJSON(w, http.StatusOK, messageListResponse{Messages: msgs})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, reqID string, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		httputil.WriteNotFoundError(w, reqID, "Conversation not found")
		return
	}
	h.logger.Error("conversation store error", "request_id", reqID, "error", err)
	httputil.WriteInternalError(w, reqID, "Conversation store error")
}
