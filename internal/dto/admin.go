package dto

import "ks-ai/internal/models"

type ProcessContentResponse struct {
	ContentID string `json:"content_id"`
	Queued    bool   `json:"queued,omitempty"`
	Success   bool   `json:"success"`
}

type ReprocessRequest struct {
	Limit int `json:"limit"`
}

type ReprocessResponse struct {
	Queued int `json:"queued"`
}

type DeleteVectorsResponse struct {
	ContentID string `json:"content_id"`
	Deleted   bool   `json:"deleted"`
}

type CollectionsResponse struct {
	Collections []models.CollectionInfo `json:"collections"`
}
