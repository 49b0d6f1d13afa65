package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// ObjectSlot stages the payload as one object in a bucket. Read and remove
// are two calls, so it relies on the slot having a single reader.
type ObjectSlot struct {
	client *minio.Client
	bucket string
	object string
}

func NewObjectSlot(client *minio.Client, bucket, object string) *ObjectSlot {
	return &ObjectSlot{client: client, bucket: bucket, object: object}
}

func NewObjectFactory(client *minio.Client, bucket string) Factory {
	return func(sessionID string) Slot {
		return NewObjectSlot(client, bucket, SlotKey(sessionID)+".bin")
	}
}

func (s *ObjectSlot) Write(ctx context.Context, payload []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to stage payload: %w", err)
	}
	return nil
}

func (s *ObjectSlot) ReadAndClear(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readErr(err)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readErr(err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.object, minio.RemoveObjectOptions{}); err != nil {
		return nil, fmt.Errorf("failed to clear staged payload: %w", err)
	}
	return payload, nil
}

func (s *ObjectSlot) readErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrEmpty
	}
	return fmt.Errorf("failed to read staged payload: %w", err)
}
