package api

import (
	"github.com/starford/nbpublish/internal/buildservice"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/publish"
)

// PublishRequest is the request body for a batch publish.
type PublishRequest struct {
	Force  bool     `json:"force" example:"false"`
	Prune  bool     `json:"prune" example:"false"`
	Topics []string `json:"topics" example:"1,2"`
}

// BuildListResponse wraps paginated build records.
type BuildListResponse struct {
	Notebooks []models.BuildRecord `json:"notebooks" validate:"required"`
	Total     int                  `json:"total" example:"42" validate:"required"`
}

// SourceListResponse lists authored notebooks.
type SourceListResponse struct {
	Sources []string `json:"sources" validate:"required"`
}

// PublishResponse summarizes a batch publish.
type PublishResponse struct {
	Results   []buildservice.PublishResult `json:"results" validate:"required"`
	Pruned    []string                     `json:"pruned,omitempty"`
	Published int                          `json:"published" example:"3"`
	Skipped   int                          `json:"skipped" example:"10"`
	Failed    int                          `json:"failed" example:"0"`
}

// RulesResponse is the active rule set with the pipeline order.
type RulesResponse struct {
	Rules any      `json:"rules" validate:"required"`
	Steps []string `json:"steps" validate:"required"`
}

// BuildDetail is the full build record (aliased from the domain layer).
type BuildDetail = buildservice.BuildDetail

// Preview is a sanitized notebook (aliased from the domain layer).
type Preview = buildservice.Preview

func toPublishResponse(sum publish.Summary) PublishResponse {
	out := PublishResponse{
		Results:   make([]buildservice.PublishResult, len(sum.Results)),
		Pruned:    sum.Pruned,
		Published: sum.Count(models.StatusPublished),
		Skipped:   sum.Count(models.StatusSkipped),
		Failed:    sum.Count(models.StatusFailed),
	}
	for i, r := range sum.Results {
		out.Results[i] = buildservice.ToPublishResult(r)
	}
	return out
}
