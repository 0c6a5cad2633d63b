// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package remote copies cache documents between the local cache directory and
// an S3 bucket so a team or a CI fleet can share warm caches.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tidwall/gjson"

	"github.com/staranto/cachekit/internal/jsonfile"
	"github.com/staranto/cachekit/internal/kiterr"
	"github.com/staranto/cachekit/internal/storage"
)

// Client is the subset of the S3 API used by Syncer. *s3.Client satisfies it.
type Client interface {
	PutObject(ctx context.Context, in *s3v2.PutObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3v2.GetObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3v2.ListObjectsV2Input, optFns ...func(*s3v2.Options)) (*s3v2.ListObjectsV2Output, error)
}

// Syncer pushes and pulls one application's documents under
// s3://<bucket>/<prefix>/<app>/.
type Syncer struct {
	client Client
	store  *storage.Manager
	bucket string
	prefix string
	log    log.Interface
}

// NewSyncer validates the target and returns a Syncer.
func NewSyncer(client Client, store *storage.Manager, bucket, prefix string) (*Syncer, error) {
	if bucket == "" {
		return nil, kiterr.Configuration("remote.bucket", "bucket must be defined")
	}
	if err := store.CheckApp(); err != nil {
		return nil, err
	}
	return &Syncer{
		client: client,
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log.WithField("bucket", bucket),
	}, nil
}

// Prefix returns the object key prefix including the app name and a
// trailing slash.
func (s *Syncer) Prefix() string {
	return path.Join(s.prefix, s.store.App()) + "/"
}

// Push uploads every cache document. It returns the uploaded keys.
func (s *Syncer) Push(ctx context.Context) ([]string, error) {
	dir, err := s.store.CacheDir()
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(files)

	var (
		pushed []string
		errs   []error
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		if strings.HasPrefix(filepath.Base(file), ".") {
			continue
		}

		body, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, kiterr.Persistence("remote.push.read", "cannot read document", file, nil, err))
			continue
		}

		key := s.Prefix() + filepath.Base(file)
		_, err = s.client.PutObject(ctx, &s3v2.PutObjectInput{
			Bucket:      awsv2.String(s.bucket),
			Key:         awsv2.String(key),
			Body:        bytes.NewReader(body),
			ContentType: awsv2.String("application/json"),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to upload %s: %w", key, err))
			continue
		}

		s.log.WithField("key", key).Debug("pushed")
		pushed = append(pushed, key)
	}

	return pushed, errors.Join(errs...)
}

// Pull downloads every document under the prefix into the cache directory,
// replacing local copies atomically. Objects that are not cache documents
// are skipped and reported. It returns the written paths.
func (s *Syncer) Pull(ctx context.Context) ([]string, error) {
	dir, err := s.store.Ensure(storage.CacheSubdir)
	if err != nil {
		return nil, err
	}

	var keys []string
	pager := s3v2.NewListObjectsV2Paginator(s.client, &s3v2.ListObjectsV2Input{
		Bucket: awsv2.String(s.bucket),
		Prefix: awsv2.String(s.Prefix()),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.Prefix(), err)
		}
		for _, obj := range page.Contents {
			key := awsv2.ToString(obj.Key)
			name := strings.TrimPrefix(key, s.Prefix())
			if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
				continue
			}
			keys = append(keys, key)
		}
	}

	var (
		pulled []string
		errs   []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return pulled, err
		}
		dest := filepath.Join(dir, path.Base(key))
		if err := s.pullOne(ctx, key, dest); err != nil {
			errs = append(errs, err)
			continue
		}
		s.log.WithField("key", key).Debug("pulled")
		pulled = append(pulled, dest)
	}

	return pulled, errors.Join(errs...)
}

func (s *Syncer) pullOne(ctx context.Context, key, dest string) error {
	out, err := s.client.GetObject(ctx, &s3v2.GetObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "date").Exists() {
		return kiterr.Persistence("remote.pull.parse", "object is not a cache document", key, body, nil)
	}

	return jsonfile.New(dest, false).Update(func(d *jsonfile.Doc) error {
		*d = *jsonfile.NewDoc(body)
		return nil
	})
}
