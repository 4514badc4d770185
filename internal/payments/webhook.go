package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// Record statuses accepted from the provider.
const (
	RecordConfirmed = "confirmed"
	RecordFailed    = "failed"
)

// Record is one normalized transaction notification.
type Record struct {
	TxID      string          `json:"txid"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Status    string          `json:"status,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// NormalizedStatus lowercases the status and applies the confirmed default.
// ok is false for any value other than confirmed or failed.
func (r Record) NormalizedStatus() (status string, ok bool) {
	switch status = strings.ToLower(strings.TrimSpace(r.Status)); status {
	case "", RecordConfirmed:
		return RecordConfirmed, true
	case RecordFailed:
		return RecordFailed, true
	default:
		return status, false
	}
}

// Failed reports whether the provider declared the transaction failed.
func (r Record) Failed() bool {
	status, ok := r.NormalizedStatus()
	return ok && status == RecordFailed
}

var errEmptyBody = errors.New("empty webhook body")

// ParseRecords accepts a single record object, an array of records, or an
// object with a "transactions" array.
func ParseRecords(raw []byte) ([]Record, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	switch body[0] {
	case '[':
		var records []Record
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}
		return records, nil
	case '{':
		var envelope struct {
			Transactions *[]Record `json:"transactions"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, err
		}
		if envelope.Transactions != nil {
			return *envelope.Transactions, nil
		}
		var record Record
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, err
		}
		return []Record{record}, nil
	default:
		return nil, errors.New("webhook body must be a JSON object or array")
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against body. An empty secret disables
// verification.
func VerifySignature(secret, signature string, body []byte) bool {
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}
