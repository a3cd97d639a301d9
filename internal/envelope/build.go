package envelope

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"integritas-mcp/internal/util"
)

// Error codes surfaced in failed envelopes.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeAuth                = "AUTH"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeLocalIO             = "LOCAL_IO"
	CodeNotFound            = "NOT_FOUND"
	CodeTimeout             = "TIMEOUT"
)

// StampFields are the values a stamp result is built from.
type StampFields struct {
	Status    string
	UID       string
	StampedAt string
	ProofURL  string
	Summary   string
	Raw       any
}

// StampSummary renders the chat line for a stamp result.
func StampSummary(status Status, uid, proofURL string) string {
	if status == "" {
		status = StatusUnknown
	}
	if status == StatusFinalized && proofURL != "" {
		s := "Stamp complete – proof uploaded"
		if uid != "" {
			s += " · UID: " + uid
		}
		return s
	}
	parts := []string{"Status: " + string(status)}
	if uid != "" {
		parts = append(parts, "· UID: "+uid)
	}
	if proofURL != "" {
		parts = append(parts, "· Proof file ready")
	}
	return strings.Join(parts, " ")
}

// BuildStamp builds a stamp result envelope.
func BuildStamp(f StampFields) Envelope {
	status := CanonicalStatus(f.Status)
	summary := f.Summary
	if summary == "" {
		summary = StampSummary(status, f.UID, f.ProofURL)
	}
	env := Envelope{
		Kind:    KindStampResult,
		Status:  status,
		Summary: summary,
		Schema:  SchemaURI,
		Data: map[string]any{
			"status":     f.Status,
			"uid":        nullable(f.UID),
			"stamped_at": nullable(f.StampedAt),
			"proof_url":  nullable(f.ProofURL),
			"raw":        rawOrEmpty(f.Raw),
		},
	}
	if f.UID != "" {
		env.IDs = map[string]string{"uid": f.UID}
	}
	if _, ok := util.ParseTimestamp(f.StampedAt); ok {
		env.Timestamps = map[string]string{"stamped_at": util.NormalizeTimestamp(f.StampedAt)}
	}
	if isAbsURL(f.ProofURL) {
		env.Links = []Link{{Rel: RelProof, Href: f.ProofURL, Label: "Download proof"}}
	}
	return env
}

// VerifyFields are the values a verification result is built from.
type VerifyFields struct {
	Result          string
	BlockNumber     *int64
	TxPowID         string
	TransactionID   string
	MatchedHash     string
	UID             string
	VerificationURL string
	Summary         string
	Raw             any
	VerifiedAt      time.Time
}

// VerifySummary renders the chat line for a verification result.
func VerifySummary(result string, blockNumber *int64, txpowID, txID string) string {
	if result == "" {
		result = "unknown"
	}
	parts := []string{"Verification: " + result}
	if blockNumber != nil {
		parts = append(parts, fmt.Sprintf("· block %d", *blockNumber))
	}
	if txpowID != "" {
		parts = append(parts, "· txpow "+txpowID)
	}
	if txID != "" {
		parts = append(parts, "· tx "+txID)
	}
	return strings.Join(parts, " ")
}

// BuildVerify builds a verification result envelope.
func BuildVerify(f VerifyFields) Envelope {
	summary := f.Summary
	if summary == "" {
		summary = VerifySummary(f.Result, f.BlockNumber, f.TxPowID, f.TransactionID)
	}
	ids := map[string]string{}
	if f.TxPowID != "" {
		ids["txpow_id"] = f.TxPowID
	}
	if f.TransactionID != "" {
		ids["tx_id"] = f.TransactionID
	}
	if f.UID != "" {
		ids["uid"] = f.UID
	}
	if f.MatchedHash != "" {
		ids["matched_hash"] = f.MatchedHash
	}
	if f.BlockNumber != nil {
		ids["block_number"] = fmt.Sprintf("%d", *f.BlockNumber)
	}
	verifiedAt := f.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = time.Now()
	}
	var block any
	if f.BlockNumber != nil {
		block = *f.BlockNumber
	}
	env := Envelope{
		Kind:       KindVerifyResult,
		Status:     CanonicalVerifyStatus(f.Result),
		Summary:    summary,
		Schema:     SchemaURI,
		Timestamps: map[string]string{"verified_at": util.UTCISO(verifiedAt)},
		Data: map[string]any{
			"result":           nullable(f.Result),
			"block_number":     block,
			"txpow_id":         nullable(f.TxPowID),
			"transactionid":    nullable(f.TransactionID),
			"matched_hash":     nullable(f.MatchedHash),
			"uid":              nullable(f.UID),
			"verification_url": nullable(f.VerificationURL),
			"raw":              rawOrEmpty(f.Raw),
		},
	}
	if len(ids) > 0 {
		env.IDs = ids
	}
	if isAbsURL(f.VerificationURL) {
		env.Links = []Link{{Rel: RelVerification, Href: f.VerificationURL, Label: "View verification"}}
	}
	return env
}

// Failure builds a failed envelope of the given kind.
func Failure(kind, code, message string, details any) Envelope {
	if message == "" {
		message = "unknown error"
	}
	return Envelope{
		Kind:    kind,
		Status:  StatusFailed,
		Summary: message,
		Schema:  SchemaURI,
		Error:   &ErrorInfo{Code: code, Message: message, Details: details},
	}
}

// StatusItem is the outcome of one UID lookup in a stamp status batch.
type StatusItem struct {
	UID    string `json:"uid"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// BuildStampStatus builds the envelope for a batch of UID lookups.
func BuildStampStatus(items []StatusItem) Envelope {
	statuses := make([]Status, 0, len(items))
	var done, pending, failed int
	ids := map[string]string{}
	for i, item := range items {
		statuses = append(statuses, item.Status)
		switch item.Status {
		case StatusFinalized:
			done++
		case StatusPending:
			pending++
		case StatusFailed:
			failed++
		}
		if item.UID != "" {
			ids[fmt.Sprintf("uid_%d", i)] = item.UID
		}
	}
	env := Envelope{
		Kind:    KindStampStatus,
		Status:  AggregateStatus(statuses),
		Summary: fmt.Sprintf("Checked %d UID(s): %d on-chain, %d pending, %d failed", len(items), done, pending, failed),
		Schema:  SchemaURI,
		Data:    items,
	}
	if len(ids) > 0 {
		env.IDs = ids
	}
	return env
}

func isAbsURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrEmpty(raw any) any {
	if raw == nil {
		return map[string]any{}
	}
	return raw
}
