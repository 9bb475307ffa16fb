package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/orbitengine/pipeline/internal/model"
)

// PipelineRecord is the GORM model backing SQLStore: the pipeline body is
// stored as a JSON blob, matching the external-interfaces note that the
// store never interprets the pipeline body — only (user_id, pipeline_id)
// is indexed.
type PipelineRecord struct {
	UserID     string `gorm:"primaryKey;column:user_id;type:varchar(128)"`
	PipelineID string `gorm:"primaryKey;column:pipeline_id;type:varchar(36)"`
	Body       []byte `gorm:"column:body;type:mediumblob"`
	CreatedAt  int64  `gorm:"column:created_at;index"`
}

// TableName pins the table name for GORM.
func (PipelineRecord) TableName() string {
	return "pipelines"
}

// SQLStore implements Store over GORM + MySQL, the durable multi-node
// backend. dsn uses the standard GORM MySQL DSN shape:
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens a MySQL connection and migrates the pipelines table.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to connect to MySQL: %w", err)
	}
	return NewSQLStoreWithDB(db)
}

// NewSQLStoreWithDB wraps an existing GORM DB handle (for example one taken
// from a shared connection pool) and migrates the pipelines table.
func NewSQLStoreWithDB(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&PipelineRecord{}); err != nil {
		return nil, fmt.Errorf("store: failed to migrate pipelines table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Save upserts the pipeline's JSON body keyed by (user_id, pipeline_id).
func (s *SQLStore) Save(userID string, pipeline *model.Pipeline) error {
	body, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("store: failed to marshal pipeline: %w", err)
	}
	record := PipelineRecord{
		UserID:     userID,
		PipelineID: pipeline.ID.String(),
		Body:       body,
		CreatedAt:  pipeline.CreatedAt.Unix(),
	}
	result := s.db.Save(&record)
	if result.Error != nil {
		return fmt.Errorf("store: failed to save pipeline: %w", result.Error)
	}
	return nil
}

// Load reads and unmarshals one pipeline, returning (nil, nil) if absent.
func (s *SQLStore) Load(userID string, pipelineID uuid.UUID) (*model.Pipeline, error) {
	var record PipelineRecord
	result := s.db.Where("user_id = ? AND pipeline_id = ?", userID, pipelineID.String()).First(&record)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("store: failed to load pipeline: %w", result.Error)
	}
	var pipeline model.Pipeline
	if err := json.Unmarshal(record.Body, &pipeline); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal pipeline: %w", err)
	}
	return &pipeline, nil
}

// List enumerates every pipeline for a user, ordered by creation time.
func (s *SQLStore) List(userID string) ([]*model.Pipeline, error) {
	var records []PipelineRecord
	result := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("store: failed to list pipelines: %w", result.Error)
	}
	out := make([]*model.Pipeline, 0, len(records))
	for _, record := range records {
		var pipeline model.Pipeline
		if err := json.Unmarshal(record.Body, &pipeline); err != nil {
			return nil, fmt.Errorf("store: failed to unmarshal pipeline %s: %w", record.PipelineID, err)
		}
		out = append(out, &pipeline)
	}
	return out, nil
}

// Delete removes a pipeline row; deleting a missing row is a no-op.
func (s *SQLStore) Delete(userID string, pipelineID uuid.UUID) error {
	result := s.db.Where("user_id = ? AND pipeline_id = ?", userID, pipelineID.String()).Delete(&PipelineRecord{})
	if result.Error != nil {
		return fmt.Errorf("store: failed to delete pipeline: %w", result.Error)
	}
	return nil
}
