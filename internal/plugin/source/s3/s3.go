package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/conversation-cache/internal/config"
	registrysource "github.com/chirino/conversation-cache/internal/registry/source"
)

func init() {
	registrysource.Register(registrysource.Plugin{
		Name:    "s3",
		Schemes: []string{"s3"},
		Loader:  load,
	})
}

func load(ctx context.Context) (registrysource.Source, error) {
	cfg := config.FromContext(ctx)
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 source: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return &s3Source{client: client}, nil
}

// s3Source reads s3://bucket/key locations.
type s3Source struct {
	client *s3.Client
}

func (s *s3Source) Open(ctx context.Context, location *url.URL) (io.ReadCloser, error) {
	bucket := location.Host
	key := strings.TrimPrefix(location.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 source: location must be s3://bucket/key, got %q", location.String())
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 source: get object: %w", err)
	}
	return out.Body, nil
}
