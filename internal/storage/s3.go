package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/kumasuke/gsu/internal/acl"
)

// S3Config holds the connection settings of an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3 implements Storage on top of an S3-compatible service.
type S3 struct {
	client *s3.Client
}

// NewS3 creates an S3 backend.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3FromClient(client), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client) *S3 {
	return &S3{client: client}
}

// CreateBucket creates a new bucket.
func (s *S3) CreateBucket(ctx context.Context, name string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	return mapS3Error(err)
}

// PutObject uploads an object.
func (s *S3) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*Object, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, mapS3Error(err)
	}
	return s.HeadObject(ctx, bucket, key)
}

// GetObject downloads an object.
func (s *S3) GetObject(ctx context.Context, bucket, key string) (*ObjectData, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}

	return &ObjectData{
		Object: Object{
			Bucket:       bucket,
			Key:          key,
			Size:         aws.ToInt64(out.ContentLength),
			LastModified: aws.ToTime(out.LastModified),
			ETag:         aws.ToString(out.ETag),
			ContentType:  aws.ToString(out.ContentType),
		},
		Body: out.Body,
	}, nil
}

// HeadObject returns object metadata.
func (s *S3) HeadObject(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}

	return &Object{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// DeleteObject deletes an object. S3 deletes are silent on missing keys,
// so existence is checked first.
func (s *S3) DeleteObject(ctx context.Context, bucket, key string) error {
	if _, err := s.HeadObject(ctx, bucket, key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return mapS3Error(err)
}

// CopyObject copies an object server side.
func (s *S3) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, preserveACL bool) (*Object, error) {
	var policy *acl.Policy
	if preserveACL {
		var err error
		policy, err = s.GetObjectACL(ctx, srcBucket, srcKey)
		if err != nil {
			return nil, err
		}
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + url.PathEscape(srcKey)),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}

	if policy != nil {
		if err := s.PutObjectACL(ctx, dstBucket, dstKey, policy); err != nil {
			return nil, fmt.Errorf("failed to copy ACL: %w", err)
		}
	}

	return s.HeadObject(ctx, dstBucket, dstKey)
}

// ListObjects lists objects whose key starts with prefix.
func (s *S3) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	objects := []Object{}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error(err)
		}
		for _, item := range page.Contents {
			objects = append(objects, Object{
				Bucket:       bucket,
				Key:          aws.ToString(item.Key),
				Size:         aws.ToInt64(item.Size),
				LastModified: aws.ToTime(item.LastModified),
				ETag:         aws.ToString(item.ETag),
			})
		}
	}
	return objects, nil
}

// GetObjectACL returns the ACL for an object.
func (s *S3) GetObjectACL(ctx context.Context, bucket, key string) (*acl.Policy, error) {
	out, err := s.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	return policyFromS3(out.Owner, out.Grants), nil
}

// PutObjectACL replaces the ACL of an object.
func (s *S3) PutObjectACL(ctx context.Context, bucket, key string, policy *acl.Policy) error {
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		AccessControlPolicy: policyToS3(policy),
	})
	return mapS3Error(err)
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *S3) Close() error {
	return nil
}

func policyFromS3(owner *types.Owner, grants []types.Grant) *acl.Policy {
	p := &acl.Policy{Xmlns: acl.Namespace}
	if owner != nil {
		p.Owner = acl.Owner{ID: aws.ToString(owner.ID), DisplayName: aws.ToString(owner.DisplayName)}
	}

	for _, g := range grants {
		grant := acl.Grant{Permission: acl.Permission(g.Permission)}
		if g.Grantee != nil {
			switch g.Grantee.Type {
			case types.TypeGroup:
				grant.Grantee = acl.Grantee{XsiType: acl.GranteeGroup, URI: aws.ToString(g.Grantee.URI)}
			default:
				grant.Grantee = acl.Grantee{
					XsiType:     acl.GranteeCanonicalUser,
					ID:          aws.ToString(g.Grantee.ID),
					DisplayName: aws.ToString(g.Grantee.DisplayName),
				}
			}
		}
		p.AccessControlList.Grants = append(p.AccessControlList.Grants, grant)
	}
	return p
}

func policyToS3(p *acl.Policy) *types.AccessControlPolicy {
	out := &types.AccessControlPolicy{
		Owner: &types.Owner{ID: aws.String(p.Owner.ID)},
	}
	if p.Owner.DisplayName != "" {
		out.Owner.DisplayName = aws.String(p.Owner.DisplayName)
	}

	for _, g := range p.AccessControlList.Grants {
		grantee := &types.Grantee{}
		if g.Grantee.XsiType == acl.GranteeGroup {
			grantee.Type = types.TypeGroup
			grantee.URI = aws.String(g.Grantee.URI)
		} else {
			grantee.Type = types.TypeCanonicalUser
			grantee.ID = aws.String(g.Grantee.ID)
		}
		out.Grants = append(out.Grants, types.Grant{
			Grantee:    grantee,
			Permission: types.Permission(g.Permission),
		})
	}
	return out
}

// mapS3Error translates S3 API error codes into storage errors.
func mapS3Error(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrObjectNotFound, apiErr.ErrorMessage())
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, apiErr.ErrorMessage())
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return fmt.Errorf("%w: %s", ErrBucketAlreadyExists, apiErr.ErrorMessage())
		case "InvalidBucketName":
			return fmt.Errorf("%w: %s", ErrInvalidBucketName, apiErr.ErrorMessage())
		}
	}
	return err
}
