package service

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

type PublishStatus struct {
	Post    *models.Post            `json:"post"`
	Targets []*models.PublishTarget `json:"targets"`
}

type StatusService interface {
	PublishStatus(ctx context.Context, postID, workspaceID int64) (*PublishStatus, error)
}

type statusService struct {
	pr repository.PostRepository
	tr repository.PublishTargetRepository
}

func NewStatusService(pr repository.PostRepository, tr repository.PublishTargetRepository) StatusService {
	return &statusService{pr: pr, tr: tr}
}

// PublishStatus returns the post with its per-target results. A post from
// another workspace reads as not found.
func (s *statusService) PublishStatus(ctx context.Context, postID, workspaceID int64) (*PublishStatus, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil || post.WorkspaceID != workspaceID {
		return nil, ErrPostNotFound
	}

	targets, err := s.tr.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return &PublishStatus{Post: post, Targets: targets}, nil
}
