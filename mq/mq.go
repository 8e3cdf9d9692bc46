package mq

import "context"

// MessageQueue carries purge jobs from permanent file deletion to the
// background consumer that erases the file's operation log and requests.
type MessageQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}

// PurgeJob is the queue payload for a permanently deleted file.
type PurgeJob struct {
	FileId    string `json:"fileId"`
	DeletedBy string `json:"deletedBy"`
	DeletedAt int64  `json:"deletedAt"`
}
