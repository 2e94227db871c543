// Package s3 implements the registry's ArchiveBackend and
// ArtifactBackend over an S3-compatible object store, following the
// client construction pattern of the teacher's own S3 state backend
// (path-style addressing, custom endpoint support for MinIO/R2-style
// deployments, static or ambient credentials).
//
// Object keys: "archive/<ns>/<digest>" for blobs, "artifact/<ns>/<digest>.json"
// for canonical records, "alias/<ns>/<system>/<name>/<tag>" for alias files.
// We store the artifact's canonical JSON directly as the object body rather
// than a pointer to a separate blob — the spec flags the metadata-vs-blob
// split as inconsistent across the original sources and asks implementers to
// pick one; storing the JSON inline keeps GetArtifact a single GetObject call
// and matches how the local backend's config/<digest>.json already works.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vorpalbuild/vorpal/pkg/artifact"
	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

// Config configures an S3-compatible backend.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Backend implements backend.ArchiveBackend and backend.ArtifactBackend
// against an S3-compatible bucket.
type Backend struct {
	client *s3.Client
	bucket string
}

// New builds a Backend from cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "s3 backend requires a bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Backend{client: client, bucket: cfg.Bucket}, nil
}

func archiveKey(namespace, digest string) string {
	return fmt.Sprintf("archive/%s/%s", namespace, digest)
}

func artifactKey(namespace, digest string) string {
	return fmt.Sprintf("artifact/%s/%s.json", namespace, digest)
}

func aliasKey(namespace, system, name, tag string) string {
	return fmt.Sprintf("alias/%s/%s/%s/%s", namespace, system, name, tag)
}

func (b *Backend) Check(ctx context.Context, namespace, digest string) error {
	if digest == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "digest is empty")
	}
	key := archiveKey(namespace, digest)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return vorpalerrors.NotFoundError("archive", digest)
		}
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "head archive object", err)
	}
	return nil
}

func (b *Backend) Pull(ctx context.Context, namespace, digest string, w io.Writer) error {
	key := archiveKey(namespace, digest)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return vorpalerrors.NotFoundError("archive", digest)
		}
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "get archive object", err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "stream archive object", err)
	}
	return nil
}

func (b *Backend) Push(ctx context.Context, namespace, digest string, data []byte) error {
	key := archiveKey(namespace, digest)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &key})
	if err == nil {
		// Already present: push is idempotent, skip the upload.
		return nil
	}
	if !isNotFound(err) {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "head archive object", err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "put archive object", err)
	}
	return nil
}

func (b *Backend) GetArtifact(ctx context.Context, namespace, digest string) (*artifact.Artifact, error) {
	key := artifactKey(namespace, digest)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, vorpalerrors.NotFoundError("artifact", digest)
		}
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "get artifact object", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read artifact object", err)
	}
	var art artifact.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "parse artifact object", err)
	}
	return &art, nil
}

func (b *Backend) GetArtifactAlias(ctx context.Context, namespace, system, name, tag string) (string, error) {
	key := aliasKey(namespace, system, name, tag)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return "", vorpalerrors.NotFoundError("alias", key)
		}
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "get alias object", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read alias object", err)
	}
	return string(data), nil
}

func (b *Backend) StoreArtifact(ctx context.Context, namespace string, art *artifact.Artifact, aliases []string) (string, error) {
	digest, err := art.Digest()
	if err != nil {
		return "", err
	}

	key := artifactKey(namespace, digest)
	if _, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &key}); err != nil {
		if !isNotFound(err) {
			return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "head artifact object", err)
		}
		canon, err := art.CanonicalJSON()
		if err != nil {
			return "", err
		}
		if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &b.bucket, Key: &key, Body: bytes.NewReader(canon),
		}); err != nil {
			return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "put artifact object", err)
		}
	}

	names := append(append([]string{}, aliases...), art.Name)
	for _, system := range art.Systems {
		for _, name := range names {
			aKey := aliasKey(namespace, string(system), name, "latest")
			if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: &b.bucket, Key: &aKey, Body: bytes.NewReader([]byte(digest)),
			}); err != nil {
				return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "put alias object", err)
			}
		}
	}

	return digest, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
