// Package storage provides a single-file artifact bundle for the predictor.
// It uses BoltDB as the underlying storage engine so the scaler, model and
// label encoder can be shipped and loaded as one file instead of a directory.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const artifactsBucket = "artifacts" // Bucket name for artifact records

// ErrArtifactNotFound is returned when a bundle has no artifact of the
// requested name.
var ErrArtifactNotFound = errors.New("artifact not found in bundle")

// ArtifactRecord is one stored artifact document.
type ArtifactRecord struct {
	Name     string    `json:"name"`
	Format   string    `json:"format"` // "json" or "yaml"
	Data     []byte    `json:"data,omitempty"`
	SHA256   string    `json:"sha256"`
	Size     int       `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Bundle is an artifact bundle backed by BoltDB.
type Bundle struct {
	db   *bbolt.DB
	path string
}

// Create opens (creating if needed) a bundle for writing.
func Create(path string) (*Bundle, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket)); err != nil {
			return fmt.Errorf("create artifacts bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bundle{db: db, path: path}, nil
}

// Open opens an existing bundle read-only. Several processes may hold the
// same bundle open.
func Open(path string) (*Bundle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	db, err := bbolt.Open(path, 0o400, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	return &Bundle{db: db, path: path}, nil
}

// Close closes the database.
func (b *Bundle) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Location returns the bundle file path.
func (b *Bundle) Location() string { return b.path }

// Put stores an artifact document under name, replacing any previous one.
func (b *Bundle) Put(name, format string, data []byte) error {
	sum := sha256.Sum256(data)
	rec := ArtifactRecord{
		Name:     name,
		Format:   format,
		Data:     data,
		SHA256:   hex.EncodeToString(sum[:]),
		Size:     len(data),
		StoredAt: time.Now().UTC(),
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(artifactsBucket))
		if bk == nil {
			return errors.New("bundle opened read-only or not initialised")
		}

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal artifact %s: %w", name, err)
		}
		return bk.Put([]byte(name), raw)
	})
}

// Get returns the stored record for name.
func (b *Bundle) Get(name string) (ArtifactRecord, error) {
	var rec ArtifactRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(artifactsBucket))
		if bk == nil {
			return fmt.Errorf("%s: %w", name, ErrArtifactNotFound)
		}
		raw := bk.Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%s: %w", name, ErrArtifactNotFound)
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("unmarshal artifact %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return ArtifactRecord{}, err
	}

	sum := sha256.Sum256(rec.Data)
	if hex.EncodeToString(sum[:]) != rec.SHA256 {
		return ArtifactRecord{}, fmt.Errorf("artifact %s checksum mismatch", name)
	}
	return rec, nil
}

// ReadArtifact returns the document and its format.
func (b *Bundle) ReadArtifact(name string) ([]byte, string, error) {
	rec, err := b.Get(name)
	if err != nil {
		return nil, "", err
	}
	return rec.Data, rec.Format, nil
}

// List returns the stored records without their data, sorted by name.
func (b *Bundle) List() ([]ArtifactRecord, error) {
	var out []ArtifactRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(artifactsBucket))
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			var rec ArtifactRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}
			rec.Data = nil
			out = append(out, rec)
			return nil
		})
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}
