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

// OTPRepo manages one-time codes.
// PK: email, SK: purpose. Each row is the latest code for that pair.
type OTPRepo struct {
	client    API
	tableName string
}

func NewOTPRepo(client API, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) key(email string, purpose domain.OTPPurpose) map[string]types.AttributeValue {
	return compositeKey(fieldEmail, email, fieldPurpose, string(purpose))
}

func (r *OTPRepo) Get(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OneTimeCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(email, purpose),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("one-time code not found: %w", domain.ErrNotFound)
	}
	var c domain.OneTimeCode
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Replace stores c as the only code for its (email, purpose), provided the
// previous code was created at or before cutoff. Otherwise the write is
// rejected with domain.ErrConflict and the previous code stays in place.
func (r *OTPRepo) Replace(ctx context.Context, c *domain.OneTimeCode, cutoff time.Time) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal one-time code: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk) OR #created <= :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#pk":      fieldEmail,
			"#created": fieldCreatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": epoch(cutoff),
		},
	})
	return wrapWrite("replace one-time code", err)
}

// IncrementAttempts records one failed guess, but only if the stored code is
// still codeID, unused, and has exactly seen attempts.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, email string, purpose domain.OTPPurpose, codeID string, seen int) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(email, purpose),
		UpdateExpression:    aws.String("SET #att = #att + :one"),
		ConditionExpression: aws.String("#cid = :cid AND #used = :false AND #att = :seen"),
		ExpressionAttributeNames: map[string]string{
			"#att":  fieldAttempts,
			"#cid":  fieldCodeID,
			"#used": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   number(1),
			":cid":   str(codeID),
			":false": boolean(false),
			":seen":  number(seen),
		},
	})
	return wrapWrite("increment attempts", err)
}

// MarkUsed consumes the code. Only one caller can win for a given codeID, and
// only while the attempt counter still equals seen.
func (r *OTPRepo) MarkUsed(ctx context.Context, email string, purpose domain.OTPPurpose, codeID string, seen int) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(email, purpose),
		UpdateExpression:    aws.String("SET #used = :true"),
		ConditionExpression: aws.String("#cid = :cid AND #used = :false AND #att = :seen"),
		ExpressionAttributeNames: map[string]string{
			"#att":  fieldAttempts,
			"#cid":  fieldCodeID,
			"#used": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid":   str(codeID),
			":true":  boolean(true),
			":false": boolean(false),
			":seen":  number(seen),
		},
	})
	return wrapWrite("mark code used", err)
}

// DeleteExpired removes codes that are used or past expiry and returns how
// many were deleted. A code reissued between scan and delete is left alone.
func (r *OTPRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#exp <= :now OR #used = :true"),
		ProjectionExpression: aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#exp":  fieldExpiresAt,
			"#used": fieldUsed,
			"#pk":   fieldEmail,
			"#sk":   fieldPurpose,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":  epoch(now),
			":true": boolean(true),
		},
	})
	deleted := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return deleted, err
		}
		for _, item := range page.Items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					fieldEmail:   item[fieldEmail],
					fieldPurpose: item[fieldPurpose],
				},
				ConditionExpression: aws.String("#exp <= :now OR #used = :true"),
				ExpressionAttributeNames: map[string]string{
					"#exp":  fieldExpiresAt,
					"#used": fieldUsed,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now":  epoch(now),
					":true": boolean(true),
				},
			})
			if conditionFailed(err) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("delete one-time code: %w", err)
			}
			deleted++
		}
	}
	return deleted, nil
}
