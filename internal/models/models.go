package models

import (
	"time"
)

// Source lifecycle statuses.
const (
	StatusUploaded       = "uploaded"
	StatusProcessing     = "processing"
	StatusProcessed      = "processed"
	StatusFailed         = "failed"
	StatusIndexingFailed = "indexing_failed"
)

// ValidStatus reports whether s is a status a source may carry.
func ValidStatus(s string) bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusFailed, StatusIndexingFailed:
		return true
	}
	return false
}

// Company is the tenant that owns training data.
type Company struct {
	UID       string    `db:"uid" json:"uid"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// User represents an account that may upload training data.
type User struct {
	UID       string    `db:"uid" json:"uid"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TrainingDataSource represents one uploaded document owned by a company.
type TrainingDataSource struct {
	UID        string    `db:"uid" json:"uid"`
	Name       string    `db:"name" json:"name"`
	Type       string    `db:"type" json:"type"`           // declared media type, e.g. application/pdf
	FilePath   string    `db:"file_path" json:"file_path"` // blob store key
	SourceURL  *string   `db:"source_url" json:"source_url,omitempty"`
	UserUID    *string   `db:"user_uid" json:"user_uid"`
	CompanyUID string    `db:"company_uid" json:"company_uid"`
	Status     string    `db:"status" json:"status"` // uploaded | processing | processed | failed | indexing_failed
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TrainingDataSourceUpdate is a partial update; nil fields are left untouched.
type TrainingDataSourceUpdate struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u TrainingDataSourceUpdate) Empty() bool {
	return u.Name == nil && u.Status == nil
}

// TrainingDataChunk is one ordered slice of a source's extracted text.
type TrainingDataChunk struct {
	UID        string    `db:"uid" json:"uid"`
	SourceUID  string    `db:"source_uid" json:"source_uid"`
	Content    string    `db:"content" json:"content"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	TokenCount int       `db:"token_count" json:"token_count"`
	Embedding  []float32 `db:"embedding" json:"embedding,omitempty"` // pgvector column, set once after indexing
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// VectorPoint is one embedding handed to the vector index.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload ChunkPayload
}

// ChunkPayload mirrors a chunk inside the vector index.
type ChunkPayload struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	SourceUID  string `json:"source_uid"`
	CompanyUID string `json:"company_uid"`
}

// SearchHit is one scored match returned from the vector index.
type SearchHit struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
	SourceUID  string  `json:"source_uid"`
	CompanyUID string  `json:"company_uid"`
}
