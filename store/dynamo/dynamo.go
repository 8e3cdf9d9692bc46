package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/copaint/copaint/canvasjson"
	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const deleteThrottle = 50 * time.Millisecond

type DynamoCoPaintStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoCoPaintStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoCoPaintStore, error) {
	client, err := newDynamoDBClient(context.Background(), devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoCoPaintStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoCoPaintStore) CreateFile(ctx context.Context, file models.File) (models.File, error) {
	fileId, err := uuid.NewV4()
	if err != nil {
		return models.File{}, err
	}
	file.Id = fileId.String()

	df := fileToDynamo(file)
	now := time.Now().UnixMilli()
	df.CreateTime = now
	df.LastEditTime = now
	df, _, err = ensureItem(dynamoStore, ctx, df)
	if err != nil {
		return models.File{}, err
	}

	return fileFromDynamo(df), nil
}

func (dynamoStore *DynamoCoPaintStore) GetFile(ctx context.Context, fileId string) (models.File, error) {
	df, err := getItem[dynamoFile](dynamoStore, ctx, "FILE#"+fileId, "META", false)
	if err != nil {
		return models.File{}, err
	}

	return fileFromDynamo(df), nil
}

func (dynamoStore *DynamoCoPaintStore) ListFilesByOwner(ctx context.Context, ownerId string, recycled bool) ([]models.File, error) {
	dynamoFiles, err := queryItemsByGSI[dynamoFile](dynamoStore, ctx, "GSI_OwnerFiles", "OwnerId", ownerId)
	if err != nil {
		return nil, err
	}

	files := make([]models.File, 0, len(dynamoFiles))
	for _, df := range dynamoFiles {
		if df.RecycleTag != recycled {
			continue
		}
		files = append(files, fileFromDynamo(df))
	}

	return files, nil
}

func (dynamoStore *DynamoCoPaintStore) RenameFile(ctx context.Context, fileId string, newName string) error {
	df := dynamoFile{
		PK:           "FILE#" + fileId,
		SK:           "META",
		FileName:     newName,
		LastEditTime: time.Now().UnixMilli(),
	}
	_, err := updateFields(dynamoStore, ctx, df, []string{"FileName", "LastEditTime"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) SetRecycled(ctx context.Context, fileId string, recycled bool) error {
	df := dynamoFile{
		PK:         "FILE#" + fileId,
		SK:         "META",
		RecycleTag: recycled,
	}
	if recycled {
		df.RecycleTime = time.Now().UnixMilli()
	}
	_, err := updateFields(dynamoStore, ctx, df, []string{"RecycleTag", "RecycleTime"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) DeleteFile(ctx context.Context, fileId string) error {
	return deleteItemIfExists(dynamoStore, ctx, "FILE#"+fileId, "META")
}

func (dynamoStore *DynamoCoPaintStore) UpdateFileContent(ctx context.Context, fileId string, content models.CanvasContent) error {
	df := dynamoFile{
		PK:            "FILE#" + fileId,
		SK:            "META",
		ContentJSON:   canvasjson.Encode(content.JSON),
		ContentWidth:  content.Width,
		ContentHeight: content.Height,
		LastEditTime:  time.Now().UnixMilli(),
	}
	_, err := updateFields(dynamoStore, ctx, df, []string{"ContentJSON", "ContentWidth", "ContentHeight", "LastEditTime"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) SetCollaborators(ctx context.Context, fileId string, collaborators []models.Collaborator) error {
	collabs := make([]dynamoCollaborator, 0, len(collaborators))
	for _, c := range collaborators {
		collabs = append(collabs, dynamoCollaborator{UserId: c.UserId, Permission: string(c.Permission)})
	}

	df := dynamoFile{
		PK:            "FILE#" + fileId,
		SK:            "META",
		Collaborators: collabs,
	}
	_, err := updateFields(dynamoStore, ctx, df, []string{"Collaborators"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) TransferOwner(ctx context.Context, fileId string, newOwnerId string, collaborators []models.Collaborator) error {
	collabs := make([]dynamoCollaborator, 0, len(collaborators))
	for _, c := range collaborators {
		collabs = append(collabs, dynamoCollaborator{UserId: c.UserId, Permission: string(c.Permission)})
	}

	df := dynamoFile{
		PK:            "FILE#" + fileId,
		SK:            "META",
		OwnerId:       newOwnerId,
		Collaborators: collabs,
		LastEditTime:  time.Now().UnixMilli(),
	}
	_, err := updateFields(dynamoStore, ctx, df, []string{"OwnerId", "Collaborators", "LastEditTime"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) SetShareSettings(ctx context.Context, fileId string, shareCode string, enablePassword bool, password string, permission models.Permission) error {
	df := dynamoFile{
		PK:              "FILE#" + fileId,
		SK:              "META",
		ShareLink:       shareCode,
		EnablePassword:  enablePassword,
		SharePassword:   password,
		SharePermission: string(permission),
	}
	_, err := updateFields(dynamoStore, ctx, df, []string{"ShareLink", "EnablePassword", "SharePassword", "SharePermission"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) AppendOperation(ctx context.Context, op models.Operation) (models.Operation, error) {
	opUUID, err := uuid.NewV7()
	if err != nil {
		return models.Operation{}, err
	}
	op.Id = opUUID.String()
	op.Timestamp = time.Now()

	if err := putItem(dynamoStore, ctx, operationToDynamo(op)); err != nil {
		return models.Operation{}, err
	}

	return op, nil
}

func (dynamoStore *DynamoCoPaintStore) ListOperationsSince(ctx context.Context, fileId string, since time.Time, limit int32) ([]models.Operation, error) {
	skLow, err := uuidAtTime(since)
	if err != nil {
		return nil, err
	}

	dynamoOps, err := queryByPKRange[dynamoOperation](dynamoStore, ctx, "OP#"+fileId, skLow, "", true, limit)
	if err != nil {
		return nil, err
	}

	ops := make([]models.Operation, 0, len(dynamoOps))
	for _, do := range dynamoOps {
		ops = append(ops, operationFromDynamo(do))
	}

	return ops, nil
}

func (dynamoStore *DynamoCoPaintStore) DeleteExpiredOperations(ctx context.Context, fileId string, olderThan time.Time, batchSize int) (int, error) {
	skHigh, err := uuidAtTime(olderThan)
	if err != nil {
		return 0, err
	}

	return deleteByPKRange(dynamoStore, ctx, "OP#"+fileId, skHigh, batchSize, deleteThrottle)
}

func (dynamoStore *DynamoCoPaintStore) DeleteFileOperations(ctx context.Context, fileId string) error {
	_, err := deleteByPKRange(dynamoStore, ctx, "OP#"+fileId, "", 0, deleteThrottle)
	return err
}

func (dynamoStore *DynamoCoPaintStore) CreatePermissionRequest(ctx context.Context, req models.PermissionRequest) (models.PermissionRequest, error) {
	requestId, err := uuid.NewV4()
	if err != nil {
		return models.PermissionRequest{}, err
	}
	req.Id = requestId.String()
	req.Status = models.RequestPending
	req.Timestamp = time.Now().UnixMilli()

	dr, _, err := ensureItem(dynamoStore, ctx, permissionRequestToDynamo(req))
	if err != nil {
		return models.PermissionRequest{}, err
	}

	return permissionRequestFromDynamo(dr), nil
}

func (dynamoStore *DynamoCoPaintStore) ListPermissionRequests(ctx context.Context, fileId string) ([]models.PermissionRequest, error) {
	dynamoReqs, err := queryByPKRange[dynamoPermissionRequest](dynamoStore, ctx, "REQ#"+fileId, "", "", true, 0)
	if err != nil {
		return nil, err
	}

	reqs := make([]models.PermissionRequest, 0, len(dynamoReqs))
	for _, dr := range dynamoReqs {
		reqs = append(reqs, permissionRequestFromDynamo(dr))
	}

	return reqs, nil
}

// ResolvePermissionRequest flips a pending request to approved/rejected.
// The status condition makes resolution exactly-once: a second resolve of
// the same request fails with ErrConditionFailed.
func (dynamoStore *DynamoCoPaintStore) ResolvePermissionRequest(ctx context.Context, fileId string, requestId string, status models.RequestStatus, processedBy string) error {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "REQ#" + fileId},
		"SK": &types.AttributeValueMemberS{Value: requestId},
	}

	_, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(dynamoStore.tableName),
		Key:              key,
		UpdateExpression: aws.String("SET RequestStatus = :status, ProcessedBy = :by, ProcessedAt = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":by":      &types.AttributeValueMemberS{Value: processedBy},
			":at":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().UnixMilli())},
			":pending": &types.AttributeValueMemberS{Value: string(models.RequestPending)},
		},
		ConditionExpression: aws.String("attribute_exists(PK) AND RequestStatus = :pending"),
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			// Distinguish "no such request" from "already resolved"
			if _, getErr := getItem[dynamoPermissionRequest](dynamoStore, ctx, "REQ#"+fileId, requestId, false); getErr != nil {
				return getErr
			}
			return store.ErrConditionFailed
		}
		return fmt.Errorf("resolve request failed: %w", err)
	}

	return nil
}

func (dynamoStore *DynamoCoPaintStore) DeleteFilePermissionRequests(ctx context.Context, fileId string) error {
	_, err := deleteByPKRange(dynamoStore, ctx, "REQ#"+fileId, "", 0, deleteThrottle)
	return err
}

func (dynamoStore *DynamoCoPaintStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.Uid == "" {
		uid, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		user.Uid = uid.String()
	}

	du := userToDynamo(user)
	du.Created = time.Now().Unix()
	du, _, err := ensureItem(dynamoStore, ctx, du)
	if err != nil {
		return models.User{}, err
	}

	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoCoPaintStore) GetUser(ctx context.Context, uid string) (models.User, error) {
	du, err := getItem[dynamoUser](dynamoStore, ctx, "USER#"+uid, "PROFILE", false)
	if err != nil {
		return models.User{}, err
	}

	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoCoPaintStore) GetUserByProvider(ctx context.Context, provider string, providerId string) (models.User, error) {
	dynamoUsers, err := queryItemsByGSI[dynamoUser](dynamoStore, ctx, "GSI_ProviderLogin", "ProviderKey", provider+"#"+providerId)
	if err != nil {
		return models.User{}, err
	}
	if len(dynamoUsers) == 0 {
		return models.User{}, store.ErrItemNotFound
	}

	return userFromDynamo(dynamoUsers[0]), nil
}

func (dynamoStore *DynamoCoPaintStore) UpdateUserProfile(ctx context.Context, user models.User) error {
	_, err := updateFields(dynamoStore, ctx, userToDynamo(user), []string{"Email", "Nickname", "Theme"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) SetUserLists(ctx context.Context, uid string, favorites []string, recents []string) error {
	du := dynamoUser{
		PK:        "USER#" + uid,
		SK:        "PROFILE",
		Favorites: favorites,
		Recents:   recents,
	}
	_, err := updateFields(dynamoStore, ctx, du, []string{"Favorites", "Recents"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) SetUserMessages(ctx context.Context, uid string, messages []models.UserMessage) error {
	du := dynamoUser{
		PK:       "USER#" + uid,
		SK:       "PROFILE",
		Messages: userMessagesToDynamo(messages),
	}
	_, err := updateFields(dynamoStore, ctx, du, []string{"Messages"})
	return err
}

func (dynamoStore *DynamoCoPaintStore) DeleteUser(ctx context.Context, uid string) error {
	return deleteItemIfExists(dynamoStore, ctx, "USER#"+uid, "PROFILE")
}

// uuidAtTime builds the smallest UUIDv7 for a timestamp, used as a sort-key
// cut point for range queries and retention deletes.
func uuidAtTime(t time.Time) (string, error) {
	id, err := uuid.NewV7AtTime(t)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
