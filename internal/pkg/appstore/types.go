package appstore

import "time"

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// ValidationResult is the strongly-typed outcome of a receipt verification.
// The raw App Store response shapes never leave this package; callers only
// ever see this struct. A failed verification is a value (IsValid=false with
// Error set), never a returned Go error.
type ValidationResult struct {
	IsValid               bool        `json:"is_valid"`
	Environment           Environment `json:"environment"`
	ProductID             string      `json:"product_id,omitempty"`
	TransactionID         string      `json:"transaction_id,omitempty"`
	OriginalTransactionID string      `json:"original_transaction_id,omitempty"`
	PurchaseDate          *time.Time  `json:"purchase_date,omitempty"`
	ExpirationDate        *time.Time  `json:"expiration_date,omitempty"`
	IsTrialPeriod         bool        `json:"is_trial_period"`
	IsIntroOfferPeriod    bool        `json:"is_intro_offer_period"`
	Error                 string      `json:"error,omitempty"`
}

// verifyRequest is the body POSTed to the verifyReceipt endpoints.
type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password,omitempty"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

// verifyResponse mirrors the loosely-typed verifyReceipt payload. Optional
// arrays and stringly-typed fields are parsed into ValidationResult at this
// boundary.
type verifyResponse struct {
	Status            int                 `json:"status"`
	Environment       string              `json:"environment"`
	LatestReceiptInfo []receiptInfo       `json:"latest_receipt_info"`
	LatestReceipt     string              `json:"latest_receipt"`
	Receipt           *verifyReceiptInner `json:"receipt"`
}

type verifyReceiptInner struct {
	BundleID string        `json:"bundle_id"`
	InApp    []receiptInfo `json:"in_app"`
}

type receiptInfo struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMs        string `json:"purchase_date_ms"`
	ExpiresDateMs         string `json:"expires_date_ms"`
	IsTrialPeriod         string `json:"is_trial_period"`
	IsInIntroOfferPeriod  string `json:"is_in_intro_offer_period"`
}
