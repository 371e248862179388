// Package s3 stores artifacts in an S3 bucket or any S3 compatible service
// (MinIO, Ceph RGW, R2).
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gobeaver/artifactkit"
)

// API is the part of the S3 client the adapter uses. *s3.Client implements it.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Adapter provides an S3 implementation of artifactkit.FileSystem.
// Directories are either "key/" marker objects or implied by key prefixes.
type Adapter struct {
	client API
	bucket string
	prefix string
}

// AdapterOption is a function that configures the S3 Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for S3 objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a new S3 store adapter
func New(client API, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}

	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// key maps a store path to an object key.
func (a *Adapter) key(op, p string) (string, string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", "", &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotAllowed}
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	return rel, a.prefix + rel, nil
}

// dirKey returns the listing prefix for a directory key.
func dirKey(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// Write implements artifactkit.FileWriter
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...artifactkit.Option) error {
	rel, key, err := a.key("write", filePath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &artifactkit.PathError{Op: "write", Path: filePath, Err: artifactkit.ErrNotAllowed}
	}

	opts := artifactkit.ApplyOptions(options...)
	if !opts.Overwrite {
		exists, err := a.FileExists(ctx, rel)
		if err != nil {
			return err
		}
		if exists {
			return &artifactkit.PathError{Op: "write", Path: rel, Err: artifactkit.ErrExist}
		}
	}

	// PutObject needs a length up front, so unsized streams are buffered.
	var body io.Reader
	var contentLength int64
	switch r := content.(type) {
	case io.ReadSeeker:
		pos, err := r.Seek(0, io.SeekCurrent)
		if err == nil {
			var end int64
			end, err = r.Seek(0, io.SeekEnd)
			if err == nil {
				_, err = r.Seek(pos, io.SeekStart)
			}
			contentLength = end - pos
		}
		if err != nil {
			return &artifactkit.PathError{Op: "write", Path: rel, Err: err}
		}
		body = r
	default:
		data, err := io.ReadAll(content)
		if err != nil {
			return &artifactkit.PathError{Op: "write", Path: rel, Err: err}
		}
		contentLength = int64(len(data))
		body = bytes.NewReader(data)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = artifactkit.ContentTypeByName(rel)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if len(opts.Metadata) > 0 {
		metadata := make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
		input.Metadata = metadata
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return mapS3Error("write", rel, err)
	}

	return nil
}

// Read implements artifactkit.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	rel, key, err := a.key("read", filePath)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error("read", rel, err)
	}

	return resp.Body, nil
}

// ReadAll implements artifactkit.FileReader
func (a *Adapter) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	rc, err := a.Read(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements artifactkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	info, err := a.Stat(ctx, filePath)
	if err != nil {
		return err
	}
	if info.IsDir {
		return &artifactkit.PathError{Op: "delete", Path: info.Path, Err: artifactkit.ErrIsDir}
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.prefix + info.Path),
	})
	if err != nil {
		return mapS3Error("delete", info.Path, err)
	}

	return nil
}

// FileExists implements artifactkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	rel, key, err := a.key("fileexists", filePath)
	if err != nil {
		return false, err
	}
	if rel == "" {
		return false, nil
	}

	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapS3Error("fileexists", rel, err)
	}

	return true, nil
}

// DirExists implements artifactkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	rel, key, err := a.key("direxists", dirPath)
	if err != nil {
		return false, err
	}
	if rel == "" {
		return true, nil
	}

	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(dirKey(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, mapS3Error("direxists", rel, err)
	}

	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0, nil
}

// Stat implements artifactkit.FileReader. A path with no object of its own
// is reported as a directory when keys exist below it.
func (a *Adapter) Stat(ctx context.Context, filePath string) (*artifactkit.FileInfo, error) {
	rel, key, err := a.key("stat", filePath)
	if err != nil {
		return nil, err
	}

	if rel != "" {
		resp, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			metadata := make(map[string]string, len(resp.Metadata))
			for k, v := range resp.Metadata {
				metadata[k] = v
			}
			return &artifactkit.FileInfo{
				Name:        path.Base(rel),
				Path:        rel,
				Size:        aws.ToInt64(resp.ContentLength),
				ModTime:     aws.ToTime(resp.LastModified),
				ContentType: aws.ToString(resp.ContentType),
				Metadata:    metadata,
			}, nil
		}
		if !isNotFound(err) {
			return nil, mapS3Error("stat", rel, err)
		}
	}

	isDir, err := a.DirExists(ctx, rel)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, &artifactkit.PathError{Op: "stat", Path: rel, Err: artifactkit.ErrNotExist}
	}

	info := &artifactkit.FileInfo{Path: rel, IsDir: true}
	if rel != "" {
		info.Name = path.Base(rel)
	}
	return info, nil
}

// ListContents implements artifactkit.FileReader. Entries carry full store
// paths. A recursive listing reports the directories implied by keys too.
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]artifactkit.FileInfo, error) {
	info, err := a.Stat(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir {
		return nil, &artifactkit.PathError{Op: "listcontents", Path: info.Path, Err: artifactkit.ErrNotDir}
	}

	listPrefix := dirKey(a.prefix + info.Path)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(listPrefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var files []artifactkit.FileInfo
	seenDirs := make(map[string]struct{})
	addDir := func(rel string) {
		if _, ok := seenDirs[rel]; ok || rel == info.Path {
			return
		}
		seenDirs[rel] = struct{}{}
		files = append(files, artifactkit.FileInfo{Name: path.Base(rel), Path: rel, IsDir: true})
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("listcontents", info.Path, err)
		}

		for _, p := range page.CommonPrefixes {
			addDir(strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), a.prefix), "/"))
		}

		for _, obj := range page.Contents {
			objKey := aws.ToString(obj.Key)
			if objKey == listPrefix {
				continue
			}
			rel := strings.TrimPrefix(objKey, a.prefix)

			// implied parents between the listed directory and the object
			if recursive {
				for dir := path.Dir(strings.TrimSuffix(rel, "/")); dir != "." && dir != info.Path; dir = path.Dir(dir) {
					addDir(dir)
				}
			}

			if strings.HasSuffix(rel, "/") {
				addDir(strings.TrimSuffix(rel, "/"))
				continue
			}
			files = append(files, artifactkit.FileInfo{
				Name:        path.Base(rel),
				Path:        rel,
				Size:        aws.ToInt64(obj.Size),
				ModTime:     aws.ToTime(obj.LastModified),
				ContentType: artifactkit.ContentTypeByName(rel),
			})
		}
	}

	return files, nil
}

// CreateDir implements artifactkit.FileWriter. S3 has no directories, so an
// empty marker object with a trailing slash is written.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	rel, key, err := a.key("createdir", dirPath)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(dirKey(key)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("application/x-directory"),
	})
	if err != nil {
		return mapS3Error("createdir", rel, err)
	}

	return nil
}

// DeleteDir implements artifactkit.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	rel, key, err := a.key("deletedir", dirPath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &artifactkit.PathError{Op: "deletedir", Path: dirPath, Err: artifactkit.ErrNotAllowed}
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(dirKey(key)),
	})

	found := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("deletedir", rel, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		found = true

		// a page holds at most 1000 keys, the DeleteObjects limit
		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}

		_, err = a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return mapS3Error("deletedir", rel, err)
		}
	}

	if !found {
		return &artifactkit.PathError{Op: "deletedir", Path: rel, Err: artifactkit.ErrNotExist}
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}

// mapS3Error maps S3 errors to artifactkit errors
func mapS3Error(op, filePath string, err error) error {
	if isNotFound(err) {
		return artifactkit.WrapPathErr(op, filePath, artifactkit.ErrNotExist)
	}

	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return artifactkit.WrapPathErr(op, filePath, artifactkit.ErrNotExist)
	}

	return artifactkit.WrapPathErr(op, filePath, err)
}

var _ artifactkit.FileSystem = (*Adapter)(nil)
