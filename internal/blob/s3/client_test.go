package s3blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{in: "https://s3.example.com", want: "https://s3.example.com"},
		{in: "http://localhost:9000", useSSL: true, want: "http://localhost:9000"},
		{in: "minio:9000", want: "http://minio:9000"},
		{in: "e2.idrive.com", useSSL: true, want: "https://e2.idrive.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "no such key", err: fmt.Errorf("wrapped: %w", &types.NoSuchKey{}), want: true},
		{name: "not found", err: &types.NotFound{}, want: true},
		{name: "http 404", err: statusErr(404), want: true},
		{name: "http 403", err: statusErr(403), want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("missing bucket accepted")
	}
	if _, err := New(ctx, ClientConfig{Bucket: "b"}); err == nil {
		t.Error("missing region accepted")
	}
}
