package zarr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const BucketStoreType = "BucketStore"

// BucketStore adapts a gocloud blob bucket (GCS, S3, local files, memory)
// to the Store interface. Keys are used as object names verbatim.
type BucketStore struct {
	bucket *blob.Bucket
}

var _ Store = (*BucketStore)(nil)

func NewBucketStore(bucket *blob.Bucket) *BucketStore {
	return &BucketStore{bucket: bucket}
}

// OpenBucketStore opens a bucket URL such as "file:///data/S2A.zarr" or
// "mem://". Drivers must be linked in by the caller with a blank import.
func OpenBucketStore(ctx context.Context, url string) (*BucketStore, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %q: %w", url, err)
	}
	return NewBucketStore(b), nil
}

func (s *BucketStore) Type() string { return BucketStoreType }

func (s *BucketStore) Get(key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(context.Background(), key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
		}
		return nil, err
	}
	return r, nil
}

func (s *BucketStore) Put(key string, val io.Reader) error {
	ctx := context.Background()
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, val); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *BucketStore) Keys(prefix string) ([]string, error) {
	ctx := context.Background()
	it := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	var keys []string
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the underlying bucket.
func (s *BucketStore) Close() error {
	return s.bucket.Close()
}
