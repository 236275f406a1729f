package tests3

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/conversation-cache/internal/testutil"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const localstackImage = "localstack/localstack:latest"

// Bucket is created in every LocalStack instance started by StartS3.
const Bucket = "snapshots"

// LocalStack is a running S3 emulator with Bucket already created.
type LocalStack struct {
	Endpoint string
	Client   *s3.Client
}

// StartS3 starts a disposable LocalStack container, creates Bucket and sets
// the AWS env vars so that aws-sdk-go-v2 LoadDefaultConfig points at it.
func StartS3(tb testing.TB) *LocalStack {
	tb.Helper()
	testutil.RequireContainers(tb, localstackImage)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        localstackImage,
			ExposedPorts: []string{"4566/tcp"},
			Env:          map[string]string{"SERVICES": "s3"},
			WaitingFor:   wait.ForListeningPort("4566/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start localstack container: %v", err)
	}
	testutil.TerminateOnCleanup(tb, container)

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("get localstack host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "4566")
	if err != nil {
		tb.Fatalf("get localstack mapped port: %v", err)
	}
	endpoint := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	tb.Setenv("AWS_ENDPOINT_URL", endpoint)
	tb.Setenv("AWS_ACCESS_KEY_ID", "test")
	tb.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	tb.Setenv("AWS_REGION", "us-east-1")

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		awsconfig.WithRegion("us-east-1"),
	)
	if err != nil {
		tb.Fatalf("load aws config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	// The edge port opens before the s3 service is up.
	if err := testutil.WaitUntilReady(ctx, 30*time.Second, func(ctx context.Context) error {
		_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(Bucket)})
		return err
	}); err != nil {
		tb.Fatalf("create bucket: %v", err)
	}
	return &LocalStack{Endpoint: endpoint, Client: client}
}

// Put uploads data to Bucket under key and returns its s3:// location.
func (l *LocalStack) Put(tb testing.TB, key string, data []byte) string {
	tb.Helper()
	_, err := l.Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		tb.Fatalf("put s3://%s/%s: %v", Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", Bucket, key)
}
