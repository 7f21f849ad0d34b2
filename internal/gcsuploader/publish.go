package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dvloznov/billing-reporter/internal/logger"
)

// ObjectName is where a run artifact is stored: runs/<runID>/<file name>.
func ObjectName(runID, filePath string) string {
	return path.Join("runs", runID, filepath.Base(filePath))
}

// Publish uploads every existing file under runs/<runID>/ in bucket and
// returns the gs:// URIs written. Files that do not exist are skipped with
// a warning.
func Publish(ctx context.Context, svc StorageService, bucket, runID string, files []string) ([]string, error) {
	log := logger.FromContext(ctx)

	if bucket == "" {
		return nil, errors.New("Publish: bucket is required")
	}

	var uris []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("file", f).Msg("artifact missing, not published")
				continue
			}
			return uris, fmt.Errorf("Publish: stat %s: %w", f, err)
		}

		object := ObjectName(runID, f)
		if err := svc.UploadFile(ctx, bucket, object, f); err != nil {
			return uris, fmt.Errorf("Publish: upload %s: %w", f, err)
		}

		uri := "gs://" + bucket + "/" + object
		log.Info().Str("file", f).Str("uri", uri).Msg("artifact published")
		uris = append(uris, uri)
	}
	return uris, nil
}
