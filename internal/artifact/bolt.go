package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const artifactsBucket = "artifacts"

// BoltStore persists artifacts in an embedded BoltDB file. Keys are artifact
// names; values are the JSON-encoded bundle. Load and save round-trip the
// bundle exactly.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the artifact database under dataPath.
func NewBoltStore(dataPath string) (*BoltStore, error) {
	dbPath := filepath.Join(dataPath, "mailscore-models.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create artifacts bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveArtifact stores the bundle under its name, replacing any previous
// bundle with the same name.
func (s *BoltStore) SaveArtifact(a *Artifact) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(artifactsBucket))

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal artifact: %w", err)
		}
		return b.Put([]byte(a.Name), data)
	})
}

// ResolveLatest returns the artifact whose name is the lexicographically
// greatest among those starting with prefix, or ErrNotFound.
func (s *BoltStore) ResolveLatest(prefix string) (*Artifact, error) {
	var latest []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(artifactsBucket)).Cursor()

		p := []byte(prefix)
		// Bolt cursors iterate in byte order, so the last matching key is
		// the greatest.
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			latest = append(latest[:0], v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, prefix)
	}

	var a Artifact
	if err := json.Unmarshal(latest, &a); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return &a, nil
}

// ListVersions returns the names of all artifacts with the given prefix in
// ascending order.
func (s *BoltStore) ListVersions(prefix string) ([]string, error) {
	var names []string

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(artifactsBucket)).Cursor()

		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	return names, err
}
