package relay

import (
	"context"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/types"
)

// Service turns canonical relay requests into normalized upstream responses.
type Service struct {
	cfg    func() *config.Config
	client *Client
}

func NewService(cfg func() *config.Config, client *Client) *Service {
	if client == nil {
		client = NewClient()
	}
	return &Service{cfg: cfg, client: client}
}

// Prepare builds the upstream messages and resolves the model for req. It is
// separate from Relay so filters can inspect the exact prompt before dispatch.
func (s *Service) Prepare(req *types.RelayRequest) error {
	msgs, err := BuildMessages(req)
	if err != nil {
		return err
	}
	req.Messages = msgs
	req.UpstreamModel = req.Model
	if cfg := s.cfg(); req.UpstreamModel == "" && cfg != nil {
		req.UpstreamModel = cfg.Upstream.DefaultModel
	}
	return nil
}

// Relay performs the upstream call for req. Errors are always *Error.
func (s *Service) Relay(ctx context.Context, req *types.RelayRequest) (*types.AIResponse, error) {
	cfg := s.cfg()
	if cfg == nil {
		return nil, &Error{Code: CodeUnexpected, Message: "configuration not loaded"}
	}
	if len(req.Messages) == 0 {
		if err := s.Prepare(req); err != nil {
			return nil, err
		}
	}

	model := req.UpstreamModel
	if model == "" {
		model = cfg.Upstream.DefaultModel
	}

	raw, err := s.client.Dispatch(ctx, cfg.Upstream, model, req.Messages)
	if err != nil {
		return nil, err
	}

	resp := Normalize(raw, cfg.Upstream.DefaultModel)
	return &resp, nil
}
