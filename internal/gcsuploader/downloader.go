package gcsuploader

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ReadSource returns the bytes behind source, which is either a gs:// URI
// or a local file path.
func ReadSource(ctx context.Context, svc StorageService, source string) ([]byte, error) {
	if strings.HasPrefix(source, "gs://") {
		if svc == nil {
			return nil, fmt.Errorf("ReadSource: %s: no storage service configured", source)
		}
		data, err := svc.FetchFromGCS(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("ReadSource: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("ReadSource: %w", err)
	}
	return data, nil
}
