package cache

import "context"

type CoPaintCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	SetFileSnapshot(ctx context.Context, fileId string, snapshot []byte) error
	GetFileSnapshot(ctx context.Context, fileId string) ([]byte, error)
	InvalidateFiles(ctx context.Context, fileIds []string) error

	SetOnlineUsers(ctx context.Context, fileId string, userIds []string) error
	GetOnlineUsers(ctx context.Context, fileId string) ([]string, error)
}
