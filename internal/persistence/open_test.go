package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/config"
	"clinicore/internal/infra/persistence/blobdoc"
	"clinicore/pkg/domain"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	cases := map[string]func(dir string) *config.Config{
		DriverMemory: func(string) *config.Config {
			cfg := config.Default()
			cfg.Storage.Driver = DriverMemory
			return cfg
		},
		DriverSQLite: func(dir string) *config.Config {
			cfg := config.Default()
			cfg.Storage.Driver = DriverSQLite
			cfg.Storage.SQLitePath = filepath.Join(dir, "clinic.db")
			return cfg
		},
		DriverBadger: func(dir string) *config.Config {
			cfg := config.Default()
			cfg.Storage.Driver = DriverBadger
			cfg.Storage.BadgerDir = filepath.Join(dir, "badger")
			return cfg
		},
		DriverBlob: func(dir string) *config.Config {
			cfg := config.Default()
			cfg.Storage.Driver = DriverBlob
			cfg.Blob.Driver = "fs"
			cfg.Blob.FSRoot = filepath.Join(dir, "blobs")
			return cfg
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := build(t.TempDir())
			store, err := Open(ctx, cfg, domain.NewRulesEngine())
			require.NoError(t, err)
			created := createPatient(t, store, "Abena")
			require.NoError(t, store.Close(ctx))

			if name == DriverMemory {
				return
			}
			reopened, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			defer func() { _ = reopened.Close(ctx) }()
			require.NoError(t, reopened.View(ctx, func(v domain.TransactionView) error {
				_, ok := v.FindPatient(created.ID)
				assert.True(t, ok)
				return nil
			}))
		})
	}
}

func TestOpenBackendBlobUsesDatasetObjectKey(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = DriverBlob
	cfg.Blob.Driver = "memory"
	backend, err := OpenBackend(context.Background(), cfg)
	require.NoError(t, err)
	doc, ok := backend.(*blobdoc.Backend)
	require.True(t, ok)
	assert.Equal(t, DatasetKey, doc.Key())
	assert.Equal(t, "clinicore/dataset.json", blobdoc.ObjectKey(doc.Key()))
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "floppy"
	_, err := Open(context.Background(), cfg, nil)
	require.ErrorContains(t, err, `unknown storage driver "floppy"`)
}

func TestBlobConfigMapping(t *testing.T) {
	got := BlobConfig(config.BlobConfig{
		Driver: "s3", S3Bucket: "b", S3Region: "r", S3Endpoint: "http://e",
		S3PathStyle: true, S3AccessKey: "ak", S3SecretKey: "sk",
	})
	assert.Equal(t, "s3", got.Driver)
	assert.Equal(t, "b", got.S3.Bucket)
	assert.True(t, got.S3.PathStyle)
	assert.Equal(t, "ak", got.S3.AccessKeyID)
	assert.Equal(t, "sk", got.S3.SecretAccessKey)
}
