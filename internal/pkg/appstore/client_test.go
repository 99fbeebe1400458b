package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(productionURL, sandboxURL string) *Client {
	return &Client{
		SharedSecret:  "test-shared-secret",
		ProductionURL: productionURL,
		SandboxURL:    sandboxURL,
		HTTPClient:    &http.Client{Timeout: 2 * time.Second},
	}
}

func verifyServer(t *testing.T, handler func(req verifyRequest) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(req)))
	}))
}

func TestVerifyReceipt_SuccessFromLatestReceiptInfo(t *testing.T) {
	purchase := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	expiry := purchase.Add(30 * 24 * time.Hour)

	srv := verifyServer(t, func(req verifyRequest) any {
		assert.Equal(t, "test-shared-secret", req.Password)
		assert.Equal(t, "receipt-blob", req.ReceiptData)
		assert.False(t, req.ExcludeOldTransactions)
		return verifyResponse{
			Status:      statusOK,
			Environment: "Production",
			LatestReceiptInfo: []receiptInfo{
				{
					ProductID:             "com.nebulanotes.pro.monthly",
					TransactionID:         "tx-old",
					OriginalTransactionID: "tx-orig",
					PurchaseDateMs:        fmt.Sprintf("%d", purchase.Add(-48*time.Hour).UnixMilli()),
				},
				{
					ProductID:             "com.nebulanotes.pro.monthly",
					TransactionID:         "tx-new",
					OriginalTransactionID: "tx-orig",
					PurchaseDateMs:        fmt.Sprintf("%d", purchase.UnixMilli()),
					ExpiresDateMs:         fmt.Sprintf("%d", expiry.UnixMilli()),
					IsTrialPeriod:         "false",
					IsInIntroOfferPeriod:  "true",
				},
			},
		}
	})
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.True(t, result.IsValid)
	assert.Empty(t, result.Error)
	assert.Equal(t, EnvironmentProduction, result.Environment)
	assert.Equal(t, "com.nebulanotes.pro.monthly", result.ProductID)
	assert.Equal(t, "tx-new", result.TransactionID)
	assert.Equal(t, "tx-orig", result.OriginalTransactionID)
	require.NotNil(t, result.PurchaseDate)
	assert.Equal(t, purchase, *result.PurchaseDate)
	require.NotNil(t, result.ExpirationDate)
	assert.Equal(t, expiry, *result.ExpirationDate)
	assert.False(t, result.IsTrialPeriod)
	assert.True(t, result.IsIntroOfferPeriod)
}

func TestVerifyReceipt_FallsBackToInAppList(t *testing.T) {
	purchase := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	srv := verifyServer(t, func(verifyRequest) any {
		return verifyResponse{
			Status:      statusOK,
			Environment: "Production",
			Receipt: &verifyReceiptInner{
				BundleID: "com.nebulanotes.app",
				InApp: []receiptInfo{
					{
						ProductID:      "com.nebulanotes.pro.yearly",
						TransactionID:  "tx-inapp",
						PurchaseDateMs: fmt.Sprintf("%d", purchase.UnixMilli()),
					},
				},
			},
		}
	})
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.True(t, result.IsValid)
	assert.Equal(t, "tx-inapp", result.TransactionID)
	assert.Equal(t, "com.nebulanotes.pro.yearly", result.ProductID)
}

func TestVerifyReceipt_SandboxRetryHappensExactlyOnce(t *testing.T) {
	var productionCalls, sandboxCalls atomic.Int32

	production := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		productionCalls.Add(1)
		json.NewEncoder(w).Encode(verifyResponse{Status: statusSandboxOnProduction})
	}))
	defer production.Close()

	purchase := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sandboxCalls.Add(1)
		json.NewEncoder(w).Encode(verifyResponse{
			Status:      statusOK,
			Environment: "Sandbox",
			LatestReceiptInfo: []receiptInfo{
				{
					ProductID:      "com.nebulanotes.pro.monthly",
					TransactionID:  "tx-sandbox",
					PurchaseDateMs: fmt.Sprintf("%d", purchase.UnixMilli()),
				},
			},
		})
	}))
	defer sandbox.Close()

	client := newTestClient(production.URL, sandbox.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.True(t, result.IsValid)
	assert.Equal(t, EnvironmentSandbox, result.Environment)
	assert.Equal(t, "tx-sandbox", result.TransactionID)
	assert.Equal(t, int32(1), productionCalls.Load())
	assert.Equal(t, int32(1), sandboxCalls.Load())
}

func TestVerifyReceipt_SandboxFailureDoesNotRetryAgain(t *testing.T) {
	var sandboxCalls atomic.Int32

	production := verifyServer(t, func(verifyRequest) any {
		return verifyResponse{Status: statusSandboxOnProduction}
	})
	defer production.Close()

	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sandboxCalls.Add(1)
		// Sandbox keeps reporting the retry status; it must not loop.
		json.NewEncoder(w).Encode(verifyResponse{Status: statusSandboxOnProduction})
	}))
	defer sandbox.Close()

	client := newTestClient(production.URL, sandbox.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Equal(t, int32(1), sandboxCalls.Load())
	assert.Equal(t, statusMessage(statusSandboxOnProduction), result.Error)
}

func TestVerifyReceipt_SandboxTransportFailureReportsProduction(t *testing.T) {
	production := verifyServer(t, func(verifyRequest) any {
		return verifyResponse{Status: statusSandboxOnProduction}
	})
	defer production.Close()

	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	sandbox.Close() // connection refused from here on

	client := newTestClient(production.URL, sandbox.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Equal(t, EnvironmentProduction, result.Environment, "without a sandbox response the environment stays production")
	assert.Contains(t, result.Error, "receipt verification request failed")
}

func TestVerifyReceipt_NoRetryForOtherStatuses(t *testing.T) {
	var sandboxCalls atomic.Int32

	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sandboxCalls.Add(1)
		json.NewEncoder(w).Encode(verifyResponse{Status: statusOK})
	}))
	defer sandbox.Close()

	for _, status := range []int{
		statusUnreadableRequest,
		statusMalformedReceipt,
		statusUnauthenticated,
		statusSharedSecretMismatch,
		statusServerUnavailable,
		statusSubscriptionExpired,
		statusProductionOnSandbox,
		statusInternalError,
		statusAccountNotFound,
	} {
		status := status
		production := verifyServer(t, func(verifyRequest) any {
			return verifyResponse{Status: status}
		})

		client := newTestClient(production.URL, sandbox.URL)
		result := client.VerifyReceipt(context.Background(), "receipt-blob")
		production.Close()

		require.False(t, result.IsValid, "status %d must be invalid", status)
		assert.Equal(t, statusMessage(status), result.Error)
		assert.NotContains(t, result.Error, "unknown receipt verification status")
	}

	assert.Equal(t, int32(0), sandboxCalls.Load(), "no status besides 21007 may reach the sandbox")
}

func TestVerifyReceipt_UnknownStatusStillProducesMessage(t *testing.T) {
	srv := verifyServer(t, func(verifyRequest) any {
		return verifyResponse{Status: 21199}
	})
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Equal(t, "unknown receipt verification status 21199", result.Error)
}

func TestVerifyReceipt_EmptyPurchaseListIsInvalid(t *testing.T) {
	srv := verifyServer(t, func(verifyRequest) any {
		return verifyResponse{
			Status:      statusOK,
			Environment: "Production",
			Receipt:     &verifyReceiptInner{BundleID: "com.nebulanotes.app"},
		}
	})
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Equal(t, "no valid purchase found in receipt", result.Error)
}

func TestVerifyReceipt_RecordWithoutTransactionIDIsInvalid(t *testing.T) {
	srv := verifyServer(t, func(verifyRequest) any {
		return verifyResponse{
			Status: statusOK,
			LatestReceiptInfo: []receiptInfo{
				{ProductID: "com.nebulanotes.pro.monthly"},
			},
		}
	})
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Equal(t, "no valid purchase found in receipt", result.Error)
}

func TestVerifyReceipt_TransportFailureIsValueNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Equal(t, EnvironmentProduction, result.Environment)
	assert.Contains(t, result.Error, "receipt verification request failed")
}

func TestVerifyReceipt_Non200ResponseIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	result := client.VerifyReceipt(context.Background(), "receipt-blob")

	require.False(t, result.IsValid)
	assert.Contains(t, result.Error, "502")
}

func TestParseMsEpoch(t *testing.T) {
	ts := parseMsEpoch("1717200000000")
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *ts)

	assert.Nil(t, parseMsEpoch(""))
	assert.Nil(t, parseMsEpoch("not-a-number"))
}
