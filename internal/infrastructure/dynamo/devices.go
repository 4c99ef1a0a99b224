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

// TrustedDeviceRepo provides typed DynamoDB operations for trusted devices.
// PK: user_id, SK: fingerprint.
type TrustedDeviceRepo struct {
	client    API
	tableName string
}

func NewTrustedDeviceRepo(client API, tableName string) *TrustedDeviceRepo {
	return &TrustedDeviceRepo{client: client, tableName: tableName}
}

func (r *TrustedDeviceRepo) key(userID, fingerprint string) map[string]types.AttributeValue {
	return compositeKey(fieldUserID, userID, fieldFingerprint, fingerprint)
}

// Upsert activates trust for (d.UserID, d.Fingerprint), keeping the original
// created_at when the row already exists.
func (r *TrustedDeviceRepo) Upsert(ctx context.Context, d *domain.TrustedDevice) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldLabel:      d.Label,
		fieldActive:     true,
		fieldLastUsedAt: d.LastUsedAt,
	})
	if err != nil {
		return err
	}
	ue.Expr += ", #until = :until, #created = if_not_exists(#created, :created)"
	ue.Names["#until"] = fieldTrustedUntil
	ue.Names["#created"] = fieldCreatedAt
	ue.Values[":until"] = epoch(d.TrustedUntil)
	created, err := attributevalue.Marshal(d.CreatedAt)
	if err != nil {
		return fmt.Errorf("marshal created_at: %w", err)
	}
	ue.Values[":created"] = created

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(d.UserID, d.Fingerprint),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return wrapWrite("upsert trusted device", err)
}

func (r *TrustedDeviceRepo) Get(ctx context.Context, userID, fingerprint string) (*domain.TrustedDevice, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(userID, fingerprint),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("trusted device not found: %w", domain.ErrNotFound)
	}
	var d domain.TrustedDevice
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Touch records a successful trusted login on an active device.
func (r *TrustedDeviceRepo) Touch(ctx context.Context, userID, fingerprint string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldLastUsedAt: at})
	if err != nil {
		return err
	}
	ue.Names["#act"] = fieldActive
	ue.Values[":true"] = boolean(true)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(userID, fingerprint),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#act = :true"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return wrapWrite("touch trusted device", err)
}

// Deactivate clears trust for one device. It reports false when the device
// does not exist or was already inactive.
func (r *TrustedDeviceRepo) Deactivate(ctx context.Context, userID, fingerprint string) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(userID, fingerprint),
		UpdateExpression:    aws.String("SET #act = :false"),
		ConditionExpression: aws.String("#act = :true"),
		ExpressionAttributeNames: map[string]string{
			"#act": fieldActive,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  boolean(true),
			":false": boolean(false),
		},
	})
	if conditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deactivate trusted device: %w", err)
	}
	return true, nil
}

// List returns every device row for the user, active or not.
func (r *TrustedDeviceRepo) List(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#pk = :uid"),
		ExpressionAttributeNames:  map[string]string{"#pk": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": str(userID)},
	})
	var devices []domain.TrustedDevice
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.TrustedDevice
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		devices = append(devices, batch...)
	}
	return devices, nil
}

// DeactivateAll clears trust for every active device of the user.
func (r *TrustedDeviceRepo) DeactivateAll(ctx context.Context, userID string) (int, error) {
	devices, err := r.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range devices {
		if !d.Active {
			continue
		}
		ok, err := r.Deactivate(ctx, userID, d.Fingerprint)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// DeactivateExpired clears trust on every active device whose window closed
// at or before now.
func (r *TrustedDeviceRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#act = :true AND #until <= :now"),
		ProjectionExpression: aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#act":   fieldActive,
			"#until": fieldTrustedUntil,
			"#pk":    fieldUserID,
			"#sk":    fieldFingerprint,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": boolean(true),
			":now":  epoch(now),
		},
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, err
		}
		for _, item := range page.Items {
			uid, _ := item[fieldUserID].(*types.AttributeValueMemberS)
			fp, _ := item[fieldFingerprint].(*types.AttributeValueMemberS)
			if uid == nil || fp == nil {
				continue
			}
			ok, err := r.Deactivate(ctx, uid.Value, fp.Value)
			if err != nil {
				return n, err
			}
			if ok {
				n++
			}
		}
	}
	return n, nil
}
