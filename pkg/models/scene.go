package models

import (
	"time"

	"github.com/google/uuid"
)

// Scene is one persisted scene row, owned by a project and attributed to the
// job that produced it. Orders are 1-based and dense within a job.
type Scene struct {
	ID                uuid.UUID `db:"id"                 json:"id"`
	ProjectID         uuid.UUID `db:"project_id"         json:"project_id"`
	JobID             uuid.UUID `db:"job_id"             json:"job_id"`
	Order             int       `db:"scene_order"        json:"order"`
	Title             string    `db:"title"              json:"title"`
	Narration         string    `db:"narration"          json:"narration"`
	VisualDescription string    `db:"visual_description" json:"visual_description"`
	Mood              string    `db:"mood"               json:"mood"`
	EstimatedDuration int       `db:"estimated_duration" json:"estimated_duration"`
	CreatedAt         time.Time `db:"created_at"         json:"created_at"`
}

// SceneData is the wire DTO for a generated scene: what the text-generation
// provider is asked to return per scene, and what the cache stores. Duration
// is in seconds.
type SceneData struct {
	Title             string `json:"title"`
	Narration         string `json:"narration"`
	VisualDescription string `json:"visual_description"`
	Mood              string `json:"mood"`
	EstimatedDuration int    `json:"estimated_duration"`
}

// Data projects the persisted row back into its wire form.
func (s *Scene) Data() SceneData {
	return SceneData{
		Title:             s.Title,
		Narration:         s.Narration,
		VisualDescription: s.VisualDescription,
		Mood:              s.Mood,
		EstimatedDuration: s.EstimatedDuration,
	}
}
