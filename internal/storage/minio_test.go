package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  MinIOConfig
		want string
	}{
		{"explicit public url", MinIOConfig{Endpoint: "minio:9000", Bucket: "media", PublicURL: "https://cdn.example.com/media/"}, "https://cdn.example.com/media"},
		{"plain http endpoint", MinIOConfig{Endpoint: "minio:9000", Bucket: "media"}, "http://minio:9000/media"},
		{"ssl endpoint", MinIOConfig{Endpoint: "s3.example.com", Bucket: "media", UseSSL: true}, "https://s3.example.com/media"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicBaseURL(tt.cfg))
		})
	}
}

func TestNewMinIO_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  MinIOConfig
	}{
		{"missing endpoint", MinIOConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"missing credentials", MinIOConfig{Endpoint: "minio:9000", Bucket: "b"}},
		{"missing bucket", MinIOConfig{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinIO(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
