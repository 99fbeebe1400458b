package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nebulanotes/nebula/internal/pkg/env"
)

const (
	defaultProductionVerifyURL = "https://buy.itunes.apple.com/verifyReceipt"
	defaultSandboxVerifyURL    = "https://sandbox.itunes.apple.com/verifyReceipt"

	defaultVerifyTimeout = 15 * time.Second
)

// Client verifies App Store receipts against Apple's verifyReceipt service.
// Verification always starts in production; only the "sandbox receipt on
// production" status triggers a single sandbox retry.
type Client struct {
	SharedSecret string

	ProductionURL string
	SandboxURL    string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		SharedSecret:  strings.TrimSpace(env.GetEnv("APPSTORE_SHARED_SECRET", "")),
		ProductionURL: strings.TrimSpace(env.GetEnv("APPSTORE_VERIFY_URL", defaultProductionVerifyURL)),
		SandboxURL:    strings.TrimSpace(env.GetEnv("APPSTORE_SANDBOX_VERIFY_URL", defaultSandboxVerifyURL)),
		HTTPClient: &http.Client{
			Timeout: defaultVerifyTimeout,
		},
	}
}

// VerifyReceipt validates a base64 receipt blob. All failures (transport,
// protocol rejection, missing purchase records) come back as a
// ValidationResult with IsValid=false; the method never returns an error.
func (c *Client) VerifyReceipt(ctx context.Context, receiptData string) ValidationResult {
	resp, err := c.sendVerifyRequest(ctx, c.ProductionURL, receiptData)
	if err != nil {
		log.Errorf("[AppStore] production verification request failed: %v", err)
		return invalidResult(EnvironmentProduction, "receipt verification request failed: "+err.Error())
	}

	// The one retry-worthy rejection: a sandbox-built receipt hit production.
	if resp.Status == statusSandboxOnProduction {
		sandboxResp, sandboxErr := c.sendVerifyRequest(ctx, c.SandboxURL, receiptData)
		if sandboxErr != nil {
			log.Errorf("[AppStore] sandbox fallback request failed: %v", sandboxErr)
			// No sandbox response arrived, so production stays the reported
			// environment.
			return invalidResult(EnvironmentProduction, "receipt verification request failed: "+sandboxErr.Error())
		}
		return interpretResponse(sandboxResp, EnvironmentSandbox)
	}

	return interpretResponse(resp, EnvironmentProduction)
}

func (c *Client) sendVerifyRequest(ctx context.Context, verifyURL, receiptData string) (*verifyResponse, error) {
	payload, err := json.Marshal(verifyRequest{
		ReceiptData:            receiptData,
		Password:               c.SharedSecret,
		ExcludeOldTransactions: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("receipt server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read verification response: %w", err)
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse verification response: %w", err)
	}
	return &out, nil
}

// interpretResponse turns a raw verifyReceipt payload into a ValidationResult.
func interpretResponse(resp *verifyResponse, attempted Environment) ValidationResult {
	environment := environmentFromResponse(resp.Environment, attempted)

	if resp.Status != statusOK {
		return invalidResult(environment, statusMessage(resp.Status))
	}

	// Prefer latest_receipt_info (covers auto-renewing subscriptions), fall
	// back to the original purchase list.
	records := resp.LatestReceiptInfo
	if len(records) == 0 && resp.Receipt != nil {
		records = resp.Receipt.InApp
	}

	rec, ok := newestRecord(records)
	if !ok || rec.TransactionID == "" || rec.ProductID == "" {
		return invalidResult(environment, "no valid purchase found in receipt")
	}

	return ValidationResult{
		IsValid:               true,
		Environment:           environment,
		ProductID:             rec.ProductID,
		TransactionID:         rec.TransactionID,
		OriginalTransactionID: rec.OriginalTransactionID,
		PurchaseDate:          parseMsEpoch(rec.PurchaseDateMs),
		ExpirationDate:        parseMsEpoch(rec.ExpiresDateMs),
		IsTrialPeriod:         rec.IsTrialPeriod == "true",
		IsIntroOfferPeriod:    rec.IsInIntroOfferPeriod == "true",
	}
}

// newestRecord picks the purchase record with the highest purchase date.
// Records without a parsable purchase date sort lowest but still win over
// nothing at all.
func newestRecord(records []receiptInfo) (receiptInfo, bool) {
	if len(records) == 0 {
		return receiptInfo{}, false
	}

	best := records[0]
	bestMs := msEpochOrZero(best.PurchaseDateMs)
	for _, rec := range records[1:] {
		if ms := msEpochOrZero(rec.PurchaseDateMs); ms >= bestMs {
			best = rec
			bestMs = ms
		}
	}
	return best, true
}

func environmentFromResponse(raw string, fallback Environment) Environment {
	if strings.EqualFold(strings.TrimSpace(raw), "sandbox") {
		return EnvironmentSandbox
	}
	if strings.EqualFold(strings.TrimSpace(raw), "production") {
		return EnvironmentProduction
	}
	return fallback
}

// parseMsEpoch converts a millisecond-epoch string into a UTC timestamp.
func parseMsEpoch(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func msEpochOrZero(s string) int64 {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

func invalidResult(environment Environment, message string) ValidationResult {
	return ValidationResult{
		IsValid:     false,
		Environment: environment,
		Error:       message,
	}
}
