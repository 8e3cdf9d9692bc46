package dynamo

import (
	"time"

	"github.com/copaint/copaint/canvasjson"
	"github.com/copaint/copaint/models"
)

type dynamoCollaborator struct {
	UserId     string `dynamodbav:"UserId"`
	Permission string `dynamodbav:"Permission"`
}

type dynamoFile struct {
	PK              string               `dynamodbav:"PK"` // FILE#<fileId>
	SK              string               `dynamodbav:"SK"` // META
	Id              string               `dynamodbav:"Id"`
	FileName        string               `dynamodbav:"FileName"`
	OwnerId         string               `dynamodbav:"OwnerId"` // GSI_OwnerFiles partition key
	Collaborators   []dynamoCollaborator `dynamodbav:"Collaborators"`
	ContentJSON     any                  `dynamodbav:"ContentJSON"` // canvasjson-encoded, never raw
	ContentWidth    float64              `dynamodbav:"ContentWidth"`
	ContentHeight   float64              `dynamodbav:"ContentHeight"`
	CreateTime      int64                `dynamodbav:"CreateTime"`
	LastEditTime    int64                `dynamodbav:"LastEditTime"`
	RecycleTag      bool                 `dynamodbav:"RecycleTag"`
	RecycleTime     int64                `dynamodbav:"RecycleTime"`
	ShareLink       string               `dynamodbav:"ShareLink"`
	EnablePassword  bool                 `dynamodbav:"EnablePassword"`
	SharePassword   string               `dynamodbav:"SharePassword"`
	SharePermission string               `dynamodbav:"SharePermission"`
}

// Map domain File -> Dynamo. The canvas snapshot is encoded here, on the
// single write path into the store.
func fileToDynamo(f models.File) dynamoFile {
	collabs := make([]dynamoCollaborator, 0, len(f.Collaborators))
	for _, c := range f.Collaborators {
		collabs = append(collabs, dynamoCollaborator{UserId: c.UserId, Permission: string(c.Permission)})
	}

	return dynamoFile{
		PK:              "FILE#" + f.Id,
		SK:              "META",
		Id:              f.Id,
		FileName:        f.FileName,
		OwnerId:         f.OwnerId,
		Collaborators:   collabs,
		ContentJSON:     canvasjson.Encode(f.Content.JSON),
		ContentWidth:    f.Content.Width,
		ContentHeight:   f.Content.Height,
		CreateTime:      f.CreateTime,
		LastEditTime:    f.LastEditTime,
		RecycleTag:      f.RecycleTag,
		RecycleTime:     f.RecycleTime,
		ShareLink:       f.ShareLink,
		EnablePassword:  f.EnablePassword,
		SharePassword:   f.SharePassword,
		SharePermission: string(f.SharePermission),
	}
}

// Map Dynamo -> domain File, decoding the canvas snapshot on the way out.
func fileFromDynamo(df dynamoFile) models.File {
	collabs := make([]models.Collaborator, 0, len(df.Collaborators))
	for _, c := range df.Collaborators {
		collabs = append(collabs, models.Collaborator{UserId: c.UserId, Permission: models.Permission(c.Permission)})
	}

	content := models.CanvasContent{
		JSON:   canvasjson.Decode(df.ContentJSON),
		Width:  df.ContentWidth,
		Height: df.ContentHeight,
	}

	return models.File{
		Id:              df.Id,
		FileName:        df.FileName,
		OwnerId:         df.OwnerId,
		Collaborators:   collabs,
		Content:         content,
		CreateTime:      df.CreateTime,
		LastEditTime:    df.LastEditTime,
		RecycleTag:      df.RecycleTag,
		RecycleTime:     df.RecycleTime,
		ShareLink:       df.ShareLink,
		EnablePassword:  df.EnablePassword,
		SharePassword:   df.SharePassword,
		SharePermission: models.Permission(df.SharePermission),
	}
}

type dynamoOperation struct {
	PK            string         `dynamodbav:"PK"` // OP#<fileId>
	SK            string         `dynamodbav:"SK"` // operation UUIDv7 (time-ordered)
	UserId        string         `dynamodbav:"UserId"`
	OperationType string         `dynamodbav:"OperationType"`
	Data          map[string]any `dynamodbav:"Data"`
	Timestamp     int64          `dynamodbav:"Timestamp"` // unix millis, server-assigned
}

func operationToDynamo(op models.Operation) dynamoOperation {
	return dynamoOperation{
		PK:            "OP#" + op.FileId,
		SK:            op.Id,
		UserId:        op.UserId,
		OperationType: string(op.OperationType),
		Data:          op.Data,
		Timestamp:     op.Timestamp.UnixMilli(),
	}
}

func operationFromDynamo(do dynamoOperation) models.Operation {
	return models.Operation{
		Id:            do.SK,
		FileId:        do.PK[3:],
		UserId:        do.UserId,
		OperationType: models.OperationType(do.OperationType),
		Data:          do.Data,
		Timestamp:     time.UnixMilli(do.Timestamp),
	}
}

type dynamoPermissionRequest struct {
	PK                  string `dynamodbav:"PK"` // REQ#<fileId>
	SK                  string `dynamodbav:"SK"` // request id
	RequesterId         string `dynamodbav:"RequesterId"`
	RequestedPermission string `dynamodbav:"RequestedPermission"`
	Message             string `dynamodbav:"Message"`
	RequestStatus       string `dynamodbav:"RequestStatus"`
	Timestamp           int64  `dynamodbav:"Timestamp"`
	ProcessedBy         string `dynamodbav:"ProcessedBy"`
	ProcessedAt         int64  `dynamodbav:"ProcessedAt"`
}

func permissionRequestToDynamo(r models.PermissionRequest) dynamoPermissionRequest {
	return dynamoPermissionRequest{
		PK:                  "REQ#" + r.FileId,
		SK:                  r.Id,
		RequesterId:         r.RequesterId,
		RequestedPermission: string(r.RequestedPermission),
		Message:             r.Message,
		RequestStatus:       string(r.Status),
		Timestamp:           r.Timestamp,
		ProcessedBy:         r.ProcessedBy,
		ProcessedAt:         r.ProcessedAt,
	}
}

func permissionRequestFromDynamo(dr dynamoPermissionRequest) models.PermissionRequest {
	return models.PermissionRequest{
		Id:                  dr.SK,
		FileId:              dr.PK[4:],
		RequesterId:         dr.RequesterId,
		RequestedPermission: models.Permission(dr.RequestedPermission),
		Message:             dr.Message,
		Status:              models.RequestStatus(dr.RequestStatus),
		Timestamp:           dr.Timestamp,
		ProcessedBy:         dr.ProcessedBy,
		ProcessedAt:         dr.ProcessedAt,
	}
}

type dynamoUserMessage struct {
	Id        string `dynamodbav:"Id"`
	Type      string `dynamodbav:"Type"`
	FileId    string `dynamodbav:"FileId"`
	FromUid   string `dynamodbav:"FromUid"`
	Text      string `dynamodbav:"Text"`
	Timestamp int64  `dynamodbav:"Timestamp"`
}

type dynamoUser struct {
	PK          string              `dynamodbav:"PK"` // USER#<uid>
	SK          string              `dynamodbav:"SK"` // PROFILE
	Uid         string              `dynamodbav:"Uid"`
	Email       string              `dynamodbav:"Email"`
	Nickname    string              `dynamodbav:"Nickname"`
	Provider    string              `dynamodbav:"Provider"`
	ProviderKey string              `dynamodbav:"ProviderKey"` // GSI_ProviderLogin partition key: <provider>#<providerId>
	ProviderId  string              `dynamodbav:"ProviderId"`
	Created     int64               `dynamodbav:"Created"`
	Favorites   []string            `dynamodbav:"Favorites"`
	Recents     []string            `dynamodbav:"Recents"`
	Messages    []dynamoUserMessage `dynamodbav:"Messages"`
	Theme       string              `dynamodbav:"Theme"`
}

func userMessagesToDynamo(msgs []models.UserMessage) []dynamoUserMessage {
	out := make([]dynamoUserMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, dynamoUserMessage{
			Id:        m.Id,
			Type:      m.Type,
			FileId:    m.FileId,
			FromUid:   m.FromUid,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

func userToDynamo(u models.User) dynamoUser {
	return dynamoUser{
		PK:          "USER#" + u.Uid,
		SK:          "PROFILE",
		Uid:         u.Uid,
		Email:       u.Email,
		Nickname:    u.Nickname,
		Provider:    u.Provider,
		ProviderKey: u.Provider + "#" + u.ProviderId,
		ProviderId:  u.ProviderId,
		Created:     u.Created,
		Favorites:   u.Favorites,
		Recents:     u.Recents,
		Messages:    userMessagesToDynamo(u.Messages),
		Theme:       u.Theme,
	}
}

func userFromDynamo(du dynamoUser) models.User {
	msgs := make([]models.UserMessage, 0, len(du.Messages))
	for _, m := range du.Messages {
		msgs = append(msgs, models.UserMessage{
			Id:        m.Id,
			Type:      m.Type,
			FileId:    m.FileId,
			FromUid:   m.FromUid,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}

	return models.User{
		Uid:        du.Uid,
		Email:      du.Email,
		Nickname:   du.Nickname,
		Provider:   du.Provider,
		ProviderId: du.ProviderId,
		Created:    du.Created,
		Favorites:  du.Favorites,
		Recents:    du.Recents,
		Messages:   msgs,
		Theme:      du.Theme,
	}
}
