package reliability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	uploaded bool
	key      string
}

func (u *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.uploaded = true
	if input.Key != nil {
		u.key = *input.Key
	}
	return &manager.UploadOutput{}, nil
}

func TestCreateAndUploadArchivesLedgerFile(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.db")
	require.NoError(t, os.WriteFile(ledgerPath, []byte("sqlite contents"), 0o644))

	uploader := &fakeUploader{}
	svc := New(Config{
		Uploader:   uploader,
		Bucket:     "stablesats-backups",
		LedgerPath: ledgerPath,
	}, zerolog.Nop())

	require.NoError(t, svc.CreateAndUpload(context.Background()))
	assert.True(t, uploader.uploaded)
	assert.Contains(t, uploader.key, "stablesats-ledger-")
	assert.Contains(t, uploader.key, ".tar.gz")
}

func TestRunSatisfiesSchedulerJob(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.db")
	require.NoError(t, os.WriteFile(ledgerPath, []byte("x"), 0o644))

	svc := New(Config{Uploader: &fakeUploader{}, Bucket: "b", LedgerPath: ledgerPath}, zerolog.Nop())
	assert.Equal(t, "ledger-backup", svc.Name())
	assert.NoError(t, svc.Run())
}
