package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Manifest indexes one published disclosure
type Manifest struct {
	ReportID       string    `dynamodbav:"report_id" json:"report_id"`
	OrganizationID string    `dynamodbav:"organization_id" json:"organization_id"`
	PeriodStart    string    `dynamodbav:"period_start" json:"period_start"`
	PeriodEnd      string    `dynamodbav:"period_end" json:"period_end"`
	Fingerprint    string    `dynamodbav:"fingerprint" json:"fingerprint"`
	TotalKgCO2e    string    `dynamodbav:"total_kg_co2e" json:"total_kg_co2e"`
	DocumentKey    string    `dynamodbav:"document_key" json:"document_key"`
	WorkbookKey    string    `dynamodbav:"workbook_key,omitempty" json:"workbook_key,omitempty"`
	SummaryKey     string    `dynamodbav:"summary_key,omitempty" json:"summary_key,omitempty"`
	WarningCount   int       `dynamodbav:"warning_count" json:"warning_count"`
	ExcludedCount  int       `dynamodbav:"excluded_count" json:"excluded_count"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
}

// DynamoAPI is the subset of the DynamoDB client the manifest store uses
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// ManifestStore persists manifests
type ManifestStore interface {
	Put(ctx context.Context, manifest Manifest) error
	Get(ctx context.Context, reportID string) (*Manifest, error)
}

// DynamoManifestStore keeps manifests in a DynamoDB table keyed by report_id
type DynamoManifestStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoManifestStore creates a manifest store over table
func NewDynamoManifestStore(client DynamoAPI, table string) *DynamoManifestStore {
	return &DynamoManifestStore{client: client, table: table}
}

// Put writes a manifest. A report id is written once; re-publishing the same
// report fails rather than overwriting its index entry.
func (s *DynamoManifestStore) Put(ctx context.Context, manifest Manifest) error {
	item, err := attributevalue.MarshalMap(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(report_id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put manifest %s: %w", manifest.ReportID, err)
	}
	return nil
}

// Get reads a manifest, returning nil when the report is unknown
func (s *DynamoManifestStore) Get(ctx context.Context, reportID string) (*Manifest, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"report_id": &types.AttributeValueMemberS{Value: reportID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest %s: %w", reportID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var manifest Manifest
	if err := attributevalue.UnmarshalMap(out.Item, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}
