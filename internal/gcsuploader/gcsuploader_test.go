package gcsuploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorage struct {
	UploadFileFunc   func(ctx context.Context, bucketName, objectName, filePath string) error
	FetchFromGCSFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *mockStorage) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
	}
	return nil
}

func (m *mockStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	if m.FetchFromGCSFunc != nil {
		return m.FetchFromGCSFunc(ctx, gcsURI)
	}
	return nil, nil
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://reports/runs/r1/summary.csv", wantBucket: "reports", wantObject: "runs/r1/summary.csv"},
		{uri: "gs://reports/summary.csv", wantBucket: "reports", wantObject: "summary.csv"},
		{uri: "gs://reports", wantErr: true},
		{uri: "gs://reports/", wantErr: true},
		{uri: "s3://reports/summary.csv", wantErr: true},
		{uri: "data/processed/summary.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	assert.Equal(t, "summary.csv", ExtractFilenameFromGCSURI("gs://b/runs/r1/summary.csv"))
	assert.Equal(t, "b", ExtractFilenameFromGCSURI("gs://b"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType("a/summary.CSV"))
	assert.Equal(t, "application/json", ContentType("customers_flat.json"))
	assert.Equal(t, "application/octet-stream", ContentType("notes"))
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "summary.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name\n"), 0o644))

	var uploaded []string
	svc := &mockStorage{
		UploadFileFunc: func(ctx context.Context, bucketName, objectName, filePath string) error {
			assert.Equal(t, "reports", bucketName)
			uploaded = append(uploaded, objectName)
			return nil
		},
	}

	uris, err := Publish(context.Background(), svc, "reports", "run-1", []string{csvPath, filepath.Join(dir, "missing.xlsx")})
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/run-1/summary.csv"}, uploaded)
	assert.Equal(t, []string{"gs://reports/runs/run-1/summary.csv"}, uris)
}

func TestPublishErrors(t *testing.T) {
	_, err := Publish(context.Background(), &mockStorage{}, "", "run-1", nil)
	assert.Error(t, err)

	dir := t.TempDir()
	p := filepath.Join(dir, "summary.csv")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	svc := &mockStorage{UploadFileFunc: func(context.Context, string, string, string) error {
		return errors.New("permission denied")
	}}
	_, err = Publish(context.Background(), svc, "reports", "run-1", []string{p})
	assert.ErrorContains(t, err, "permission denied")
}

func TestReadSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, os.WriteFile(p, []byte("local"), 0o644))

	data, err := ReadSource(context.Background(), nil, p)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	svc := &mockStorage{FetchFromGCSFunc: func(ctx context.Context, uri string) ([]byte, error) {
		return []byte("remote:" + uri), nil
	}}
	data, err = ReadSource(context.Background(), svc, "gs://b/summary.csv")
	require.NoError(t, err)
	assert.Equal(t, "remote:gs://b/summary.csv", string(data))

	_, err = ReadSource(context.Background(), nil, "gs://b/summary.csv")
	assert.Error(t, err)
}
