package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BucketStats summarises the objects under a prefix.
type BucketStats struct {
	Objects      int64
	TotalSize    int64
	LastModified time.Time
	PerOwner     map[string]int64 // second path segment of exports/<owner>/... keys
}

// List returns every object under prefix.
func (m *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, object.Err)
		}
		out = append(out, ObjectInfo{Key: object.Key, Size: object.Size, LastModified: object.LastModified})
	}
	return out, nil
}

// Stats aggregates List.
func (m *MinioStore) Stats(ctx context.Context, prefix string) (*BucketStats, error) {
	objects, err := m.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	stats := &BucketStats{PerOwner: make(map[string]int64)}
	for _, o := range objects {
		stats.Objects++
		stats.TotalSize += o.Size
		if o.LastModified.After(stats.LastModified) {
			stats.LastModified = o.LastModified
		}
		if parts := strings.SplitN(o.Key, "/", 3); len(parts) == 3 {
			stats.PerOwner[parts[1]]++
		}
	}
	return stats, nil
}

// RemovePrefix deletes every object under prefix and returns how many were removed.
// An empty prefix is refused so a bucket is never wiped by accident.
func (m *MinioStore) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.Trim(prefix, "/") == "" {
		return 0, fmt.Errorf("refusing to remove objects without a prefix")
	}

	objects, err := m.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	go func() {
		defer close(objectsCh)
		for _, obj := range objects {
			objectsCh <- minio.ObjectInfo{Key: obj.Key}
		}
	}()

	for rmErr := range m.client.RemoveObjects(ctx, m.bucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			return 0, fmt.Errorf("failed to remove object %s: %w", rmErr.ObjectName, rmErr.Err)
		}
	}
	return len(objects), nil
}

// FormatSize renders a byte count for CLI output.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

