// Package export writes and restores password-sealed backups of a user's
// tasks, projects and categories.
package export

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/crypto"
	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/changelog"
)

// FormatVersion is written to every manifest.
const FormatVersion = "1.0"

const (
	manifestName = "manifest.json"
	dataName     = "data.json"
)

// Service exports and imports backups.
type Service struct {
	repo *db.Repository
	log  *changelog.Log
}

// NewService creates a Service. Imported rows are recorded in log so they
// sync like local edits.
func NewService(repo *db.Repository, log *changelog.Log) *Service {
	return &Service{repo: repo, log: log}
}

// Manifest describes the contents of an archive.
type Manifest struct {
	Version       string           `json:"version"`
	ExportedAt    models.Timestamp `json:"exportedAt"`
	UserID        models.UUID      `json:"userId"`
	TaskCount     int              `json:"taskCount"`
	ProjectCount  int              `json:"projectCount"`
	CategoryCount int              `json:"categoryCount"`
	Checksum      string           `json:"checksum"`
	Encrypted     bool             `json:"encrypted"`
}

// Data is the exported entity set.
type Data struct {
	Tasks      []*models.Task     `json:"tasks"`
	Projects   []*models.Project  `json:"projects"`
	Categories []*models.Category `json:"categories"`
}

// ExportResult summarizes an export.
type ExportResult struct {
	Path      string
	SizeBytes int64
	Manifest  Manifest
	Duration  time.Duration
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int
	Skipped  int
	Manifest Manifest
	Duration time.Duration
}

func (s *Service) ready() error {
	if s == nil || s.repo == nil || s.log == nil {
		return apperrors.New(apperrors.ErrNotInitialized, "export service is not initialized")
	}
	return nil
}

// =====================================================
// Export
// =====================================================

// Export builds an archive of everything visible to userID. An empty
// password leaves the archive unsealed.
func (s *Service) Export(ctx context.Context, userID models.UUID, password string) ([]byte, *Manifest, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}

	var data Data
	var err error
	if data.Categories, err = s.repo.ListCategories(ctx, userID); err != nil {
		return nil, nil, err
	}
	if data.Projects, err = s.repo.ListProjects(ctx, userID); err != nil {
		return nil, nil, err
	}
	if data.Tasks, err = s.repo.ListTasks(ctx, userID, nil); err != nil {
		return nil, nil, err
	}

	payload, err := json.MarshalIndent(&data, "", "  ")
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode export data", err)
	}
	manifest := &Manifest{
		Version:       FormatVersion,
		ExportedAt:    s.repo.Now(),
		UserID:        userID,
		TaskCount:     len(data.Tasks),
		ProjectCount:  len(data.Projects),
		CategoryCount: len(data.Categories),
		Checksum:      checksum(payload),
		Encrypted:     password != "",
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode manifest", err)
	}

	archive, err := packArchive(manifestJSON, payload)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternal, "failed to create archive", err)
	}
	if password != "" {
		if archive, err = crypto.SealArchive(archive, password); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrValidation, "failed to seal archive", err)
		}
	}
	return archive, manifest, nil
}

// ExportFile writes an archive to path through a temporary file.
func (s *Service) ExportFile(ctx context.Context, userID models.UUID, path, password string) (*ExportResult, error) {
	start := time.Now()
	archive, manifest, err := s.Export(ctx, userID, password)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to create export directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, archive, 0o600); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to write archive", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to finalize archive", err)
	}

	logging.Info("Export complete", map[string]interface{}{
		"path":       path,
		"tasks":      manifest.TaskCount,
		"projects":   manifest.ProjectCount,
		"categories": manifest.CategoryCount,
		"encrypted":  manifest.Encrypted,
	})
	return &ExportResult{
		Path:      path,
		SizeBytes: int64(len(archive)),
		Manifest:  *manifest,
		Duration:  time.Since(start),
	}, nil
}

// DefaultFileName names an archive after its creation time.
func DefaultFileName(now time.Time) string {
	return fmt.Sprintf("taskin_%s.tar.gz", now.UTC().Format("20060102_150405"))
}

// =====================================================
// Import
// =====================================================

// Import merges an archive into the local store. Rows newer than the local
// copy are written and recorded in the change log; the rest are skipped.
func (s *Service) Import(ctx context.Context, userID models.UUID, archive []byte, password string) (*ImportResult, error) {
	start := time.Now()
	if err := s.ready(); err != nil {
		return nil, err
	}

	if crypto.IsSealedArchive(archive) {
		if password == "" {
			return nil, apperrors.New(apperrors.ErrValidation, "archive is encrypted, a password is required")
		}
		plain, err := crypto.OpenArchive(archive, password)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to open archive", err)
		}
		archive = plain
	}

	manifestJSON, payload, err := unpackArchive(archive)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to read archive", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to decode manifest", err)
	}
	if manifest.Checksum == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "manifest missing checksum")
	}
	if got := checksum(payload); got != manifest.Checksum {
		return nil, apperrors.Newf(apperrors.ErrValidation, "checksum mismatch: got %s, want %s", got, manifest.Checksum)
	}
	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to decode export data", err)
	}

	result := &ImportResult{Manifest: manifest}
	err = s.repo.InTx(ctx, func(tx *db.Repository) error {
		log := s.log.With(tx)
		for _, c := range data.Categories {
			if err := s.merge(ctx, result, c.ID, func() (bool, bool, error) {
				_, err := tx.GetCategory(ctx, c.ID)
				existed, err := found(err)
				if err != nil {
					return false, false, err
				}
				ok, err := tx.UpsertCategory(ctx, c)
				return ok, existed, err
			}, func(action models.ChangeAction) error {
				_, err := log.Append(ctx, userID, models.EntityCategory, c.ID, action, c)
				return err
			}); err != nil {
				return err
			}
		}
		for _, p := range data.Projects {
			if err := s.merge(ctx, result, p.ID, func() (bool, bool, error) {
				_, err := tx.GetProject(ctx, p.ID)
				existed, err := found(err)
				if err != nil {
					return false, false, err
				}
				ok, err := tx.UpsertProject(ctx, p)
				return ok, existed, err
			}, func(action models.ChangeAction) error {
				_, err := log.Append(ctx, userID, models.EntityProject, p.ID, action, p)
				return err
			}); err != nil {
				return err
			}
		}
		for _, t := range seriesFirst(data.Tasks) {
			if err := s.merge(ctx, result, t.ID, func() (bool, bool, error) {
				_, err := tx.GetTask(ctx, t.ID)
				existed, err := found(err)
				if err != nil {
					return false, false, err
				}
				ok, err := tx.UpsertTask(ctx, t)
				return ok, existed, err
			}, func(action models.ChangeAction) error {
				_, err := log.Append(ctx, userID, models.EntityTask, t.ID, action, t)
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	logging.Info("Import complete", map[string]interface{}{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	})
	return result, nil
}

// ImportFile reads path and imports it.
func (s *Service) ImportFile(ctx context.Context, userID models.UUID, path, password string) (*ImportResult, error) {
	archive, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "failed to read archive", err)
	}
	return s.Import(ctx, userID, archive, password)
}

// merge runs one versioned upsert and records it. Constraint violations
// skip the row; storage failures abort the import.
func (s *Service) merge(ctx context.Context, result *ImportResult, id models.UUID, upsert func() (written, existed bool, err error), record func(models.ChangeAction) error) error {
	written, existed, err := upsert()
	if err != nil {
		if apperrors.Is(err, apperrors.ErrDatabase) {
			return err
		}
		logging.Warn("Import row skipped", map[string]interface{}{
			"entity_id": string(id),
			"error":     err.Error(),
		})
		result.Skipped++
		return nil
	}
	if !written {
		result.Skipped++
		return nil
	}
	action := models.ActionCreate
	if existed {
		action = models.ActionUpdate
	}
	if err := record(action); err != nil {
		return err
	}
	result.Imported++
	return nil
}

// found turns a lookup error into a presence flag.
func found(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case apperrors.Is(err, apperrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// seriesFirst orders series heads before their generated instances.
func seriesFirst(tasks []*models.Task) []*models.Task {
	out := append([]*models.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ParentTaskID == "" && out[j].ParentTaskID != ""
	})
	return out
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// =====================================================
// Archive Layout
// =====================================================

func packArchive(manifest, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range []struct {
		name string
		body []byte
	}{{manifestName, manifest}, {dataName, data}} {
		hdr := &tar.Header{Name: f.name, Mode: 0o600, Size: int64(len(f.body))}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(f.body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unpackArchive(archive []byte) (manifest, data []byte, err error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, err
		}
		switch hdr.Name {
		case manifestName:
			manifest = body
		case dataName:
			data = body
		}
	}
	if manifest == nil || data == nil {
		return nil, nil, fmt.Errorf("archive must contain %s and %s", manifestName, dataName)
	}
	return manifest, data, nil
}
