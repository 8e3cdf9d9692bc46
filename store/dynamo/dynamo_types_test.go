package dynamo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/copaint/copaint/models"
)

func TestFileMapping_RoundTrip(t *testing.T) {
	file := models.File{
		Id:       "file1",
		FileName: "sketch",
		OwnerId:  "owner",
		Collaborators: []models.Collaborator{
			{UserId: "user2", Permission: models.PermissionEdit},
		},
		Content: models.CanvasContent{
			JSON: map[string]any{
				"version": "5.3",
				"objects": []any{
					map[string]any{"type": "rect", "points": []any{1.0, 2.0}},
				},
			},
			Width:  800,
			Height: 600,
		},
		CreateTime:      1700000000,
		LastEditTime:    1700000100,
		ShareLink:       "code1",
		EnablePassword:  true,
		SharePassword:   "hunter2",
		SharePermission: models.PermissionRead,
	}

	df := fileToDynamo(file)

	assert.Equal(t, "FILE#file1", df.PK)
	assert.Equal(t, "META", df.SK)
	// The stored snapshot carries no raw arrays
	assert.False(t, containsArray(df.ContentJSON))

	back := fileFromDynamo(df)
	assert.Equal(t, file, back)
}

// containsArray walks an attributevalue-shaped document looking for a plain
// JSON array, which DynamoDB would store as an untyped list.
func containsArray(v any) bool {
	switch val := v.(type) {
	case []any:
		return true
	case map[string]any:
		for _, child := range val {
			if containsArray(child) {
				return true
			}
		}
	}
	return false
}

func TestOperationMapping_StripsKeyPrefix(t *testing.T) {
	do := dynamoOperation{
		PK:            "OP#file1",
		SK:            "018f3c00-0000-7000-8000-000000000000",
		UserId:        "user2",
		OperationType: "object_add",
		Data:          map[string]any{"objectId": "o1"},
		Timestamp:     1700000000123,
	}

	op := operationFromDynamo(do)

	assert.Equal(t, "file1", op.FileId)
	assert.Equal(t, do.SK, op.Id)
	assert.Equal(t, models.OpObjectAdd, op.OperationType)
	assert.Equal(t, int64(1700000000123), op.Timestamp.UnixMilli())
}

func TestPermissionRequestMapping_RoundTrip(t *testing.T) {
	req := models.PermissionRequest{
		Id:                  "req1",
		FileId:              "file1",
		RequesterId:         "user2",
		RequestedPermission: models.PermissionEdit,
		Message:             "let me in",
		Status:              models.RequestPending,
		Timestamp:           1700000000,
	}

	dr := permissionRequestToDynamo(req)
	assert.Equal(t, "REQ#file1", dr.PK)
	assert.Equal(t, "req1", dr.SK)

	assert.Equal(t, req, permissionRequestFromDynamo(dr))
}

func TestUserMapping_ProviderKey(t *testing.T) {
	user := models.User{
		Uid:        "uid1",
		Email:      "a@example.com",
		Nickname:   "alice",
		Provider:   "github",
		ProviderId: "12345",
		Created:    1700000000,
	}

	du := userToDynamo(user)

	assert.Equal(t, "USER#uid1", du.PK)
	assert.Equal(t, "PROFILE", du.SK)
	assert.Equal(t, "github#12345", du.ProviderKey)
	assert.Equal(t, user, userFromDynamo(du))
}
