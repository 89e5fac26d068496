// Package storage はS3互換オブジェクトストレージへのアップロードを提供する。
package storage

import (
	"context"
	"io"
)

// PutOptions はアップロード時の付帯情報。
// Sizeが不明な場合は-1を指定する。
type PutOptions struct {
	Size        int64
	ContentType string
}

// Storage はオブジェクトストレージのインターフェース。
type Storage interface {
	// Put はオブジェクトをアップロードし、公開URLを返す。
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (string, error)
	Delete(ctx context.Context, key string) error
}
