package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/insightora-auth/internal/domain"
)

const (
	emailIndex       = "email-index"
	emailGuardPrefix = "EMAIL#"
)

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    API
	tableName string
}

func NewUserRepo(client API, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

// Create writes the user together with its email guard item in one
// transaction. A taken email or user id yields domain.ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	notExists := aws.String("attribute_not_exists(" + fieldUserID + ")")
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: notExists,
			}},
			{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item: map[string]types.AttributeValue{
					fieldUserID:  str(emailGuardPrefix + u.Email),
					fieldOwnerID: str(u.UserID),
				},
				ConditionExpression: notExists,
			}},
		},
	})
	return wrapWrite("create user", err)
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail resolves the user through email-index. The index is eventually
// consistent, so a miss falls back to the guard item which is read strongly.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(emailIndex),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldEmail},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": str(email)},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) > 0 {
		var u domain.User
		if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
			return nil, err
		}
		return &u, nil
	}

	guard, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, emailGuardPrefix+email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	owner, ok := guard.Item[fieldOwnerID].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return r.Get(ctx, owner.Value)
}

// MarkVerified flips verified to true. A missing user yields domain.ErrConflict.
func (r *UserRepo) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, userID, map[string]interface{}{fieldVerified: true, fieldUpdatedAt: at}, false)
}

func (r *UserRepo) SetActive(ctx context.Context, userID string, active bool, at time.Time) error {
	return r.update(ctx, userID, map[string]interface{}{fieldActive: active, fieldUpdatedAt: at}, false)
}

func (r *UserRepo) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, userID, map[string]interface{}{fieldLastLoginAt: at, fieldUpdatedAt: at}, false)
}

func (r *UserRepo) SetPasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	return r.update(ctx, userID, map[string]interface{}{fieldPasswordHash: hash, fieldUpdatedAt: at}, false)
}

// ReplaceRegistration overwrites the credential and profile of a user that
// has not verified yet. Once verified the write fails with domain.ErrConflict.
func (r *UserRepo) ReplaceRegistration(ctx context.Context, u *domain.User) error {
	return r.update(ctx, u.UserID, map[string]interface{}{
		fieldPasswordHash: u.PasswordHash,
		fieldAccountClass: u.AccountClass,
		fieldFirstName:    u.FirstName,
		fieldLastName:     u.LastName,
		fieldBusinessName: u.BusinessName,
		fieldUpdatedAt:    u.UpdatedAt,
	}, true)
}

// update applies a SET expression to an existing user, optionally only while
// the user is still unverified.
func (r *UserRepo) update(ctx context.Context, userID string, updates map[string]interface{}, onlyUnverified bool) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	cond := "attribute_exists(#pk)"
	ue.Names["#pk"] = fieldUserID
	if onlyUnverified {
		cond += " AND #ver = :unverified"
		ue.Names["#ver"] = fieldVerified
		ue.Values[":unverified"] = boolean(false)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return wrapWrite("update user", err)
}
