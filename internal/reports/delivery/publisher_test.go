package delivery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/pkg/storage"
)

// MockDynamo is a mock implementation of DynamoAPI
type MockDynamo struct {
	mock.Mock
}

func (m *MockDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

func (m *MockDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

// MockSNS is a mock implementation of SNSAPI
type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

// MockSES is a mock implementation of SESAPI
type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

func testBundle() Bundle {
	return Bundle{
		ReportID:       "r-1",
		OrganizationID: "org-1",
		EntityName:     "Acme",
		PeriodStart:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Fingerprint:    "abc",
		TotalKgCO2e:    "7000",
		Document:       []byte("<html/>"),
		Workbook:       []byte("xlsx"),
		Summary:        []byte("%PDF"),
		Recipients:     []string{"cfo@example.com"},
	}
}

func TestPublishUploadsIndexesAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryS3Client()

	dynamo := new(MockDynamo)
	dynamo.On("PutItem", ctx, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		var m Manifest
		if err := attributevalue.UnmarshalMap(in.Item, &m); err != nil {
			return false
		}
		return *in.TableName == "manifests" && m.ReportID == "r-1" && m.TotalKgCO2e == "7000" &&
			m.DocumentKey == "ghg/org-1/2024-01-01_2024-12-31/r-1/disclosure.xhtml"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	snsClient := new(MockSNS)
	snsClient.On("Publish", ctx, mock.AnythingOfType("*sns.PublishInput")).Return(&sns.PublishOutput{}, nil)
	sesClient := new(MockSES)
	sesClient.On("SendEmail", ctx, mock.AnythingOfType("*sesv2.SendEmailInput")).Return(nil, errors.New("throttled"))

	notifier := NewNotifier(snsClient, "arn:topic", sesClient, "noreply@example.com", zap.NewNop())
	publisher := NewPublisher(store, NewDynamoManifestStore(dynamo, "manifests"), notifier,
		PublisherConfig{Bucket: "disclosures", Prefix: "/ghg/"}, zap.NewNop())

	receipt, err := publisher.Publish(ctx, testBundle())
	require.NoError(t, err)

	assert.Equal(t, "s3://disclosures/ghg/org-1/2024-01-01_2024-12-31/r-1/disclosure.xhtml", receipt.DocumentURI)
	assert.Equal(t, "s3://disclosures/ghg/org-1/2024-01-01_2024-12-31/r-1/inventory.xlsx", receipt.WorkbookURI)
	assert.Equal(t, "s3://disclosures/ghg/org-1/2024-01-01_2024-12-31/r-1/summary.pdf", receipt.SummaryURI)
	assert.Len(t, store.Keys(), 3)
	assert.Equal(t, ContentTypeXHTML, store.ContentType("disclosures", "ghg/org-1/2024-01-01_2024-12-31/r-1/disclosure.xhtml"))

	body, err := store.Download(ctx, "disclosures", receipt.Manifest.DocumentKey)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	assert.Equal(t, "<html/>", string(data))

	require.Len(t, receipt.Deliveries, 2)
	assert.True(t, receipt.Deliveries[0].Success)
	assert.Equal(t, "sns", receipt.Deliveries[0].Method)
	assert.False(t, receipt.Deliveries[1].Success)
	assert.Equal(t, "cfo@example.com", receipt.Deliveries[1].Recipient)

	dynamo.AssertExpectations(t)
	snsClient.AssertExpectations(t)
	sesClient.AssertExpectations(t)
}

func TestPublishFailsWhenManifestFails(t *testing.T) {
	ctx := context.Background()
	dynamo := new(MockDynamo)
	dynamo.On("PutItem", ctx, mock.Anything).Return(nil, errors.New("conditional check failed"))

	publisher := NewPublisher(storage.NewMemoryS3Client(), NewDynamoManifestStore(dynamo, "manifests"), nil,
		PublisherConfig{Bucket: "disclosures"}, zap.NewNop())

	_, err := publisher.Publish(ctx, testBundle())
	assert.ErrorContains(t, err, "conditional check failed")
}

func TestPublishRequiresDocumentAndBucket(t *testing.T) {
	publisher := NewPublisher(storage.NewMemoryS3Client(), nil, nil, PublisherConfig{}, zap.NewNop())
	_, err := publisher.Publish(context.Background(), testBundle())
	assert.Error(t, err)

	publisher = NewPublisher(storage.NewMemoryS3Client(), nil, nil, PublisherConfig{Bucket: "b"}, zap.NewNop())
	bundle := testBundle()
	bundle.Document = nil
	_, err = publisher.Publish(context.Background(), bundle)
	assert.Error(t, err)
}

func TestDynamoManifestStoreGet(t *testing.T) {
	ctx := context.Background()
	item, err := attributevalue.MarshalMap(Manifest{ReportID: "r-9", Fingerprint: "f"})
	require.NoError(t, err)

	dynamo := new(MockDynamo)
	dynamo.On("GetItem", ctx, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		key, ok := in.Key["report_id"].(*types.AttributeValueMemberS)
		return ok && key.Value == "r-9"
	})).Return(&dynamodb.GetItemOutput{Item: item}, nil)
	dynamo.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	store := NewDynamoManifestStore(dynamo, "manifests")
	got, err := store.Get(ctx, "r-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f", got.Fingerprint)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
