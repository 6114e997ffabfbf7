package service

import (
	"context"
	"sync"

	"github.com/maheshrc27/postflow/internal/models"
	"go.uber.org/ratelimit"
)

// Error codes recorded on publish targets.
const (
	CodeRejected            = "rejected"
	CodeException           = "exception"
	CodeTimeout             = "timeout"
	CodeUnsupportedPlatform = "unsupported_platform"
	CodeDestinationMissing  = "destination_missing"
	CodeUnsupportedMedia    = "unsupported_media"
	CodeRetriesExhausted    = "retries_exhausted"
)

type TargetRequest struct {
	Post    *models.Post
	Target  *models.PublishTarget
	Account *models.SocialAccount
	Media   []*models.MediaAsset
}

type TargetResult struct {
	Success      bool
	ExternalID   string
	ExternalURL  string
	ErrorCode    string
	ErrorMessage string
}

// TargetProcessor publishes one target on one platform. A result with
// Success false is a final rejection by the platform; a returned error is a
// failure worth another attempt.
type TargetProcessor interface {
	Publish(ctx context.Context, req TargetRequest) (TargetResult, error)
}

type TargetProcessorFunc func(ctx context.Context, req TargetRequest) (TargetResult, error)

func (f TargetProcessorFunc) Publish(ctx context.Context, req TargetRequest) (TargetResult, error) {
	return f(ctx, req)
}

func rejected(code, message string) TargetResult {
	return TargetResult{ErrorCode: code, ErrorMessage: message}
}

// ProcessorRegistry maps platform codes to processors.
type ProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]TargetProcessor
	perSecond  int
}

// NewProcessorRegistry returns a registry that limits each platform to
// perSecond calls. Zero disables limiting.
func NewProcessorRegistry(perSecond int) *ProcessorRegistry {
	return &ProcessorRegistry{
		processors: make(map[string]TargetProcessor),
		perSecond:  perSecond,
	}
}

func (r *ProcessorRegistry) Register(platform string, p TargetProcessor) {
	if r.perSecond > 0 {
		p = &limitedProcessor{next: p, limiter: ratelimit.New(r.perSecond)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[platform] = p
}

func (r *ProcessorRegistry) Get(platform string) (TargetProcessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[platform]
	return p, ok
}

type limitedProcessor struct {
	next    TargetProcessor
	limiter ratelimit.Limiter
}

func (p *limitedProcessor) Publish(ctx context.Context, req TargetRequest) (TargetResult, error) {
	p.limiter.Take()
	if err := ctx.Err(); err != nil {
		return TargetResult{}, err
	}
	return p.next.Publish(ctx, req)
}
