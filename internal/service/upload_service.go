package service

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Uploader is the file upload boundary. The show state only ever stores
// the returned URL; nothing downstream inspects file contents.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, data io.Reader) (string, error)
	Open(ctx context.Context, id string) (data io.ReadCloser, contentType string, err error)
}

type gridFSUploader struct {
	bucket *gridfs.Bucket
}

// NewGridFSUploader stores uploads in a MongoDB GridFS bucket and serves
// them back under /files/{id}.
func NewGridFSUploader(db *mongo.Database) (Uploader, error) {
	bucket, err := gridfs.NewBucket(db)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload bucket: %w", err)
	}
	return &gridFSUploader{bucket: bucket}, nil
}

func (u *gridFSUploader) Upload(ctx context.Context, filename, contentType string, data io.Reader) (string, error) {
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := u.bucket.UploadFromStream(filename, data, opts)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return "/files/" + id.Hex(), nil
}

func (u *gridFSUploader) Open(ctx context.Context, id string) (io.ReadCloser, string, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, "", fmt.Errorf("invalid file id %q", id)
	}

	stream, err := u.bucket.OpenDownloadStream(objectID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload %s: %w", id, err)
	}

	contentType := "application/octet-stream"
	if file := stream.GetFile(); file != nil && file.Metadata != nil {
		var meta struct {
			ContentType string `bson:"contentType"`
		}
		if err := bson.Unmarshal(file.Metadata, &meta); err == nil && meta.ContentType != "" {
			contentType = meta.ContentType
		}
	}
	return stream, contentType, nil
}
