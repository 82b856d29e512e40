// Package embedcache is the durable embedding cache (§4.4): a
// key-value store of computed chunk rows keyed by uuid, with a logical
// reconstruction key of (artifact_id, cacheKey, path).
package embedcache

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/jamaly87/vectorindex/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Cache is the embedding cache's durable binding: a single gorm-backed
// SQLite table named lance_db_cache (§6).
type Cache struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the cache database at path and
// applies any pending migrations. path may be ":memory:" for tests.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate embedding cache: %w", err)
	}
	return c, nil
}

// migrate ensures the lance_db_cache table exists and carries the
// artifact_id column (§6: "a named migration adds the artifact_id column
// with default value UNDEFINED on legacy rows").
func (c *Cache) migrate() error {
	m := gormigrate.New(c.db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202401010000_create_lance_db_cache",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.CacheRecord{})
			},
		},
		{
			ID: "202401020000_add_artifact_id_default_undefined",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&models.CacheRecord{}, "artifact_id") {
					return tx.Exec(
						"UPDATE lance_db_cache SET artifact_id = ? WHERE artifact_id IS NULL OR artifact_id = ''",
						"UNDEFINED",
					).Error
				}
				return tx.Migrator().AddColumn(&models.CacheRecord{}, "artifact_id")
			},
		},
	})
	return m.Migrate()
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert durably writes record, keyed by its uuid. The cache is
// append-mostly: no update is ever issued to an existing row.
func (c *Cache) Insert(record models.CacheRecord) error {
	if err := c.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert cache record %s: %w", record.UUID, err)
	}
	return nil
}

// SelectByKey reconstructs every cache record sharing the logical key
// (artifactID, cacheKey, path) — used by add-tag (§4.1 step 5).
func (c *Cache) SelectByKey(artifactID, cacheKey, path string) ([]models.CacheRecord, error) {
	var records []models.CacheRecord
	err := c.db.Where("artifact_id = ? AND cache_key = ? AND path = ?", artifactID, cacheKey, path).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select cache records (artifact=%s, cacheKey=%s, path=%s): %w", artifactID, cacheKey, path, err)
	}
	return records, nil
}

// SelectAllForArtifact lists every (path, cacheKey) pair currently
// known for artifactID — the baseline an upstream refresh producer
// diffs a fresh workspace scan against.
func (c *Cache) SelectAllForArtifact(artifactID string) ([]models.CacheRecord, error) {
	var records []models.CacheRecord
	err := c.db.Distinct("path", "cache_key", "artifact_id").
		Where("artifact_id = ?", artifactID).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select known state for artifact %s: %w", artifactID, err)
	}
	return records, nil
}

// SelectByUUIDs recovers startLine/endLine/contents for the given uuids —
// used by the Retriever's join step (§4.6 step 5).
func (c *Cache) SelectByUUIDs(uuids []string) ([]models.CacheRecord, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	var records []models.CacheRecord
	if err := c.db.Where("uuid IN ?", uuids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to select cache records by uuid: %w", err)
	}
	return records, nil
}

// Delete removes every cache record sharing the logical key
// (artifactID, cacheKey, path) — used by delete (§4.1 step 7).
func (c *Cache) Delete(artifactID, cacheKey, path string) error {
	err := c.db.Where("artifact_id = ? AND cache_key = ? AND path = ?", artifactID, cacheKey, path).
		Delete(&models.CacheRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cache records (artifact=%s, cacheKey=%s, path=%s): %w", artifactID, cacheKey, path, err)
	}
	return nil
}
