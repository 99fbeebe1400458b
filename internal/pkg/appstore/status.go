package appstore

import "fmt"

// verifyReceipt status codes. 0 is success; everything else maps to a fixed
// error taxonomy below.
const (
	statusOK                   = 0
	statusUnreadableRequest    = 21000
	statusMalformedReceipt     = 21002
	statusUnauthenticated      = 21003
	statusSharedSecretMismatch = 21004
	statusServerUnavailable    = 21005
	statusSubscriptionExpired  = 21006
	statusSandboxOnProduction  = 21007
	statusProductionOnSandbox  = 21008
	statusInternalError        = 21009
	statusAccountNotFound      = 21010
)

// statusMessage maps a non-zero verification status to a human-readable,
// distinct error string. Raw protocol internals are never surfaced.
func statusMessage(status int) string {
	switch status {
	case statusUnreadableRequest:
		return "the App Store could not read the verification request"
	case statusMalformedReceipt:
		return "the receipt data is malformed or missing"
	case statusUnauthenticated:
		return "the receipt could not be authenticated"
	case statusSharedSecretMismatch:
		return "the shared secret does not match"
	case statusServerUnavailable:
		return "the receipt server is temporarily unavailable"
	case statusSubscriptionExpired:
		return "the subscription has expired"
	case statusSandboxOnProduction:
		return "sandbox receipt was sent to the production environment"
	case statusProductionOnSandbox:
		return "production receipt was sent to the sandbox environment"
	case statusInternalError:
		return "internal data access error at the receipt server"
	case statusAccountNotFound:
		return "the purchasing account could not be found"
	default:
		return fmt.Sprintf("unknown receipt verification status %d", status)
	}
}
