package s3

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/blobstore"
)

// Partitions lists the containers of the bucket as partitions, one per top
// level prefix owned by the sharder, sorted by id range.
func (s *Store) Partitions(ctx context.Context) ([]blobstore.Partition, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var parts []blobstore.Partition
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		if err := s.observe("ListObjectsV2", "/", start, err); err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			lo, hi, ok := s.sharder.Range(name)
			if !ok {
				logger.DebugCtx(ctx, "skipping foreign container", logger.Backend(s.name), logger.KeyContainer, name)
				continue
			}
			parts = append(parts, blobstore.Partition{Name: name, Lo: lo, Hi: hi})
		}
	}

	slices.SortFunc(parts, func(a, b blobstore.Partition) int { return cmp.Compare(a.Lo, b.Lo) })
	return parts, nil
}

// Scan lists one container. S3 lists keys lexically, which differs from
// numeric order for decimal ids, so the container is collected and sorted
// before yielding. Containers hold a bounded number of ids.
func (s *Store) Scan(ctx context.Context, p blobstore.Partition) iter.Seq2[blobstore.Object, error] {
	return func(yield func(blobstore.Object, error) bool) {
		objs, err := s.listContainer(ctx, p)
		if err != nil {
			yield(blobstore.Object{}, err)
			return
		}
		for _, obj := range objs {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

func (s *Store) listContainer(ctx context.Context, p blobstore.Partition) ([]blobstore.Object, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var objs []blobstore.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(p.Name + "/"),
	})
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		if err := s.observe("ListObjectsV2", p.Name, start, err); err != nil {
			return nil, err
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			id, ok := s.sharder.Parse(p.Name, key)
			if !ok || !p.Contains(id) {
				logger.DebugCtx(ctx, "skipping foreign object", logger.Backend(s.name), logger.KeyKey, key)
				continue
			}
			objs = append(objs, blobstore.Object{
				ID:        id,
				Key:       key,
				Size:      aws.ToInt64(o.Size),
				CreatedAt: aws.ToTime(o.LastModified),
			})
		}
	}

	slices.SortFunc(objs, func(a, b blobstore.Object) int { return cmp.Compare(a.ID, b.ID) })
	return objs, nil
}
