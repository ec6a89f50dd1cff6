package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// SNSAPI is the subset of the SNS client used for topic notices
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESAPI is the subset of the SESv2 client used for email notices
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notice is a short message announcing a published disclosure
type Notice struct {
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Recipients []string          `json:"recipients,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DeliveryResult represents the result of a delivery attempt
type DeliveryResult struct {
	Method      string    `json:"method"`
	Success     bool      `json:"success"`
	Recipient   string    `json:"recipient,omitempty"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Notifier sends notices to an SNS topic and, for listed recipients, by SES email.
// Either channel may be disabled by leaving its client nil.
type Notifier struct {
	sns         SNSAPI
	topicARN    string
	ses         SESAPI
	fromAddress string
	logger      *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(snsClient SNSAPI, topicARN string, sesClient SESAPI, fromAddress string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sns:         snsClient,
		topicARN:    topicARN,
		ses:         sesClient,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// Notify sends the notice on every enabled channel. Failures are reported in
// the results and logged; they never fail the caller.
func (n *Notifier) Notify(ctx context.Context, notice Notice) []DeliveryResult {
	var results []DeliveryResult

	if n.sns != nil && n.topicARN != "" {
		results = append(results, n.publishTopic(ctx, notice))
	}
	if n.ses != nil && n.fromAddress != "" {
		for _, to := range notice.Recipients {
			results = append(results, n.sendEmail(ctx, notice, to))
		}
	}
	return results
}

func (n *Notifier) publishTopic(ctx context.Context, notice Notice) DeliveryResult {
	attrs := make(map[string]snstypes.MessageAttributeValue, len(notice.Attributes))
	for k, v := range notice.Attributes {
		attrs[k] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	result := DeliveryResult{Method: "sns", Recipient: n.topicARN, DeliveredAt: time.Now().UTC()}
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(n.topicARN),
		Subject:           aws.String(notice.Subject),
		Message:           aws.String(notice.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		n.logger.Warn("Failed to publish disclosure notice", zap.Error(err), zap.String("topic", n.topicARN))
		result.Error = err.Error()
		return result
	}
	result.Success = true
	n.logger.Info("Disclosure notice published", zap.String("topic", n.topicARN))
	return result
}

func (n *Notifier) sendEmail(ctx context.Context, notice Notice, to string) DeliveryResult {
	result := DeliveryResult{Method: "email", Recipient: to, DeliveredAt: time.Now().UTC()}
	_, err := n.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.fromAddress),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(notice.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(notice.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		n.logger.Warn("Failed to send disclosure email", zap.Error(err), zap.String("to", to))
		result.Error = fmt.Sprintf("failed to send email: %v", err)
		return result
	}
	result.Success = true
	n.logger.Info("Disclosure email sent", zap.String("to", to))
	return result
}
