// Package reliability periodically snapshots the ledger's SQLite file and
// uploads it to an S3-compatible bucket, the cold-backup half of the
// ambient stack spec.md's Non-goals don't mention but which every
// financial ledger in the teacher's lineage carries regardless
// (internal/reliability/r2_backup_service.go's tar+gzip+checksum+upload
// shape, adapted to a single-database ledger and a generic S3 client
// instead of a bespoke R2 wrapper).
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader is the narrow capability BackupService needs out of an S3
// client, satisfied by *manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Config wires a BackupService to its dependencies.
type Config struct {
	Uploader   Uploader
	Bucket     string
	LedgerPath string // path to the ledger's SQLite file on disk
	KeyPrefix  string // defaults to "stablesats-ledger-"
}

// BackupService tars, gzips, checksums and uploads a point-in-time copy
// of the ledger database.
type BackupService struct {
	cfg Config
	log zerolog.Logger
}

// New constructs a BackupService from cfg.
func New(cfg Config, log zerolog.Logger) *BackupService {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "stablesats-ledger-"
	}
	return &BackupService{cfg: cfg, log: log.With().Str("component", "reliability-backup").Logger()}
}

// Name satisfies scheduler.Job.
func (s *BackupService) Name() string { return "ledger-backup" }

// Run satisfies scheduler.Job: one backup-and-upload cycle.
func (s *BackupService) Run() error {
	return s.CreateAndUpload(context.Background())
}

// CreateAndUpload snapshots the ledger database into a tar.gz archive
// alongside a checksum, then uploads the archive to the configured
// bucket under a timestamped key.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	stagingDir, err := os.MkdirTemp("", "stablesats-backup-")
	if err != nil {
		return fmt.Errorf("reliability: create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbCopyPath := filepath.Join(stagingDir, "ledger.db")
	checksum, err := copyWithChecksum(s.cfg.LedgerPath, dbCopyPath)
	if err != nil {
		return fmt.Errorf("reliability: copy ledger database: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", s.cfg.KeyPrefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := archiveDatabase(archivePath, dbCopyPath, checksum); err != nil {
		return fmt.Errorf("reliability: build archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("reliability: open archive: %w", err)
	}
	defer archive.Close()

	if _, err := s.cfg.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &archiveName,
		Body:   archive,
	}); err != nil {
		return fmt.Errorf("reliability: upload archive: %w", err)
	}

	s.log.Info().
		Str("archive", archiveName).
		Str("checksum", checksum).
		Dur("duration", time.Since(start)).
		Msg("ledger backup uploaded")
	return nil
}

// copyWithChecksum copies src to dst and returns the sha256 checksum of
// the bytes copied.
func copyWithChecksum(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// archiveDatabase writes a tar.gz at archivePath containing dbPath and a
// checksum.txt sidecar.
func archiveDatabase(archivePath, dbPath, checksum string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	if err := addFileToTar(tw, dbPath, "ledger.db"); err != nil {
		return err
	}
	return addBytesToTar(tw, []byte(checksum+"  ledger.db\n"), "checksum.txt")
}

func addFileToTar(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func addBytesToTar(tw *tar.Writer, data []byte, name string) error {
	hdr := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0o644,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
