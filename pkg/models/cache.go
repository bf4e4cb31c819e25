package models

import "time"

// SceneCacheEntry stores the full scene set produced for one input
// fingerprint. Written only by the worker after a fully successful run;
// admission reads it to skip generation for identical submissions.
type SceneCacheEntry struct {
	Fingerprint string      `db:"fingerprint" json:"fingerprint"`
	Language    string      `db:"language"    json:"language"`
	StoryType   string      `db:"story_type"  json:"story_type"`
	Tone        string      `db:"tone"        json:"tone"`
	Scenes      []SceneData `db:"scenes"      json:"scenes"`
	HitCount    int         `db:"hit_count"   json:"hit_count"`
	ExpiresAt   time.Time   `db:"expires_at"  json:"expires_at"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"`
}
