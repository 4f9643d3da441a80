package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/whisper/roulette/internal/messaging"
)

// Service files abuse reports. CreateReport returns the stored report id.
type Service interface {
	CreateReport(ctx context.Context, r Report) (string, error)
}

// Requester is the request/reply transport a NATSService needs.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// NATSService files reports with a moderation worker over NATS request/reply.
type NATSService struct {
	client Requester
}

// NewNATSService creates a service using client.
func NewNATSService(client Requester) *NATSService {
	return &NATSService{client: client}
}

// CreateReport sends the report and waits for the worker's reply.
func (s *NATSService) CreateReport(ctx context.Context, r Report) (string, error) {
	data, err := json.Marshal(NewReportRequest(r))
	if err != nil {
		return "", fmt.Errorf("moderation: encode report: %w", err)
	}

	resp, err := s.client.Request(ctx, messaging.SubjectReport, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrConnectionClosed) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("moderation: request: %w", err)
	}

	var reply ReportReply
	if err := json.Unmarshal(resp, &reply); err != nil {
		return "", fmt.Errorf("moderation: decode reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	if reply.ReportID == "" {
		return "", fmt.Errorf("%w: empty report id", ErrRejected)
	}
	return reply.ReportID, nil
}
