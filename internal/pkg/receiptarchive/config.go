package receiptarchive

import (
	"errors"
	"fmt"

	"github.com/nebulanotes/nebula/internal/pkg/env"
)

// Config holds receipt archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("RECEIPT_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when receipt archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when receipt archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when receipt archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if receipt archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ReceiptObjectKey generates a standardized object key for a validated receipt
func (c *Config) ReceiptObjectKey(userID uint, transactionID string, year, month int) string {
	// Format: receipts/YYYY/MM/user-<id>-<tx>.json
	return fmt.Sprintf("receipts/%04d/%02d/user-%d-%s.json", year, month, userID, transactionID)
}

// WebhookObjectKey generates a standardized object key for a webhook payload
func (c *Config) WebhookObjectKey(provider, eventID string, year, month int) string {
	return fmt.Sprintf("webhooks/%04d/%02d/%s-%s.json", year, month, provider, eventID)
}

// GetBucketName returns the bucket name as configured
func (c *Config) GetBucketName() string {
	return c.BucketName
}
