package dto

import (
	"deadkm-service/internal/domain"
	"time"
)

type ProgressResponse struct {
	Found     bool       `json:"found"`
	TaskID    string     `json:"task_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	Percent   int        `json:"percent"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func FromDomainProgress(p domain.Progress) ProgressResponse {
	updated := p.UpdatedAt
	return ProgressResponse{
		Found:     true,
		TaskID:    p.TaskID,
		Status:    string(p.Status),
		Percent:   p.Percent,
		Message:   p.Message,
		UpdatedAt: &updated,
	}
}
