package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// artifactRecord is the database row of an Artifact.
type artifactRecord struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Name        string     `gorm:"size:255;not null;uniqueIndex"`
	Kind        string     `gorm:"size:16;not null;index"`
	Participant string     `gorm:"size:255;index"`
	SessionID   string     `gorm:"size:64;index"`
	SourceURL   string     `gorm:"size:2048"`
	MimeType    string     `gorm:"size:64"`
	Size        int64      `gorm:"not null"`
	Checksum    string     `gorm:"size:64"`
	StoragePath string     `gorm:"size:1024;not null"`
	CreatedAt   time.Time  `gorm:"not null;index"`
	ExpiresAt   *time.Time `gorm:"index"`
}

func (artifactRecord) TableName() string { return "image_artifacts" }

func toRecord(a *Artifact) artifactRecord {
	return artifactRecord{
		ID:          a.ID,
		Name:        a.Name,
		Kind:        string(a.Kind),
		Participant: a.Participant,
		SessionID:   a.SessionID,
		SourceURL:   a.SourceURL,
		MimeType:    a.MimeType,
		Size:        a.Size,
		Checksum:    a.Checksum,
		StoragePath: a.StoragePath,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
	}
}

func (r artifactRecord) toArtifact() *Artifact {
	return &Artifact{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        Kind(r.Kind),
		Participant: r.Participant,
		SessionID:   r.SessionID,
		SourceURL:   r.SourceURL,
		MimeType:    r.MimeType,
		Size:        r.Size,
		Checksum:    r.Checksum,
		StoragePath: r.StoragePath,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// GormIndex keeps artifact metadata in a SQL table.
type GormIndex struct {
	db *gorm.DB
}

// NewGormIndex migrates the artifact table and returns an index over db.
func NewGormIndex(db *gorm.DB) (*GormIndex, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&artifactRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate artifact table: %w", err)
	}
	return &GormIndex{db: db}, nil
}

func (g *GormIndex) Put(ctx context.Context, artifact *Artifact) error {
	rec := toRecord(artifact)
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ? AND id <> ?", rec.Name, rec.ID).Delete(&artifactRecord{}).Error; err != nil {
			return err
		}
		return tx.Save(&rec).Error
	})
}

func (g *GormIndex) Get(ctx context.Context, id string) (*Artifact, error) {
	var rec artifactRecord
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec.toArtifact(), nil
}

func (g *GormIndex) List(ctx context.Context, query Query) ([]*Artifact, error) {
	q := g.db.WithContext(ctx).Model(&artifactRecord{})
	if query.SessionID != "" {
		q = q.Where("session_id = ?", query.SessionID)
	}
	if query.Kind != "" {
		q = q.Where("kind = ?", string(query.Kind))
	}
	if query.Participant != "" {
		q = q.Where("participant = ?", query.Participant)
	}
	if !query.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", query.CreatedBefore)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var recs []artifactRecord
	if err := q.Order("created_at ASC").Order("name ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Artifact, len(recs))
	for i, r := range recs {
		out[i] = r.toArtifact()
	}
	return out, nil
}

func (g *GormIndex) Delete(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Where("id = ?", id).Delete(&artifactRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
