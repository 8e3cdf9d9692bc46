package models

import "time"

// Permission is the access level a collaborator holds on a file.
// Levels form a total order: none < read < edit.
type Permission string

const (
	PermissionNone Permission = "none"
	PermissionRead Permission = "read"
	PermissionEdit Permission = "edit"
)

// Rank returns the numeric position of the permission in the order.
// Unknown values rank as none.
func (p Permission) Rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionEdit:
		return 2
	default:
		return 0
	}
}

func (p Permission) Valid() bool {
	return p == PermissionNone || p == PermissionRead || p == PermissionEdit
}

type Collaborator struct {
	UserId     string     `json:"userId"`
	Permission Permission `json:"permission"`
}

// CanvasContent is one canvas snapshot. JSON holds the arbitrary nested
// structure produced by the canvas library; it is replaced wholesale on
// every save (last-writer-wins, no merge).
type CanvasContent struct {
	JSON   any     `json:"json"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (c CanvasContent) IsZero() bool {
	return c.JSON == nil && c.Width == 0 && c.Height == 0
}

type File struct {
	Id              string
	FileName        string
	OwnerId         string
	Collaborators   []Collaborator
	Content         CanvasContent
	CreateTime      int64
	LastEditTime    int64
	RecycleTag      bool
	RecycleTime     int64
	ShareLink       string
	EnablePassword  bool
	SharePassword   string
	SharePermission Permission
}

type OperationType string

const (
	OpCanvasUpdate OperationType = "canvas_update"
	OpObjectAdd    OperationType = "object_add"
	OpObjectUpdate OperationType = "object_update"
	OpObjectDelete OperationType = "object_delete"
	OpCursorMove   OperationType = "cursor_move"
	OpUserJoin     OperationType = "user_join"
	OpUserLeave    OperationType = "user_leave"
)

// Operation is one row of the per-file activity log. Rows are append-only,
// time-ordered by their UUIDv7 id, and purged after an age threshold. They
// are an activity/heartbeat signal and an echo-suppression key only; edits
// propagate as full content snapshots, never by replaying operations.
type Operation struct {
	Id            string         `json:"id"`
	FileId        string         `json:"fileId"`
	UserId        string         `json:"userId"`
	OperationType OperationType  `json:"operationType"`
	Data          map[string]any `json:"data"`
	Timestamp     time.Time      `json:"timestamp"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type PermissionRequest struct {
	Id                  string
	FileId              string
	RequesterId         string
	RequestedPermission Permission
	Message             string
	Status              RequestStatus
	Timestamp           int64
	ProcessedBy         string
	ProcessedAt         int64
}

// UserMessage is an in-app notification stored on the user's profile row,
// newest first. Currently the only producer is a permission request landing
// on a file the user owns.
type UserMessage struct {
	Id        string `json:"id"`
	Type      string `json:"type"`
	FileId    string `json:"fileId"`
	FromUid   string `json:"fromUid"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type User struct {
	Uid        string
	Email      string
	Nickname   string
	Provider   string
	ProviderId string
	Created    int64
	Favorites  []string
	Recents    []string
	Messages   []UserMessage
	Theme      string
}
