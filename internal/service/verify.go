package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/upstream"
	"integritas-mcp/internal/util"
)

// LocalVerifyFailure is the single message for any problem on our side of a
// verification call.
const LocalVerifyFailure = "Verification failed due to a local/transport issue."

// VerifyDataRequest names the proof file to verify.
type VerifyDataRequest struct {
	FileURL  string `json:"file_url,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

type verifyPayload struct {
	RequestID  string `json:"requestId"`
	Status     string `json:"status"`
	StatusCode *int   `json:"statusCode"`
	Message    string `json:"message"`
	Data       struct {
		Verification struct {
			NFTTxnID string `json:"nfttxnid"`
			Data     *struct {
				Result         string           `json:"result"`
				BlockchainData []map[string]any `json:"blockchain_data"`
			} `json:"data"`
		} `json:"verification"`
		File struct {
			DownloadURL string `json:"download_url"`
		} `json:"file"`
	} `json:"data"`
}

// VerifyData uploads a proof file and reports whether it matches on chain.
func (s *Service) VerifyData(ctx context.Context, req VerifyDataRequest, requestID string) envelope.ToolResponse {
	if requestID == "" {
		requestID = upstream.NewRequestID()
	}
	logger := s.logger.With(zap.String("request_id", requestID))

	var upload upstream.Upload
	var err error
	switch {
	case strings.TrimSpace(req.FileURL) != "":
		upload, err = s.up.Fetch(ctx, strings.TrimSpace(req.FileURL))
		upload.ContentType = "application/json"
	case strings.TrimSpace(req.FilePath) != "":
		upload, err = readLocalUpload(req.FilePath, "application/json")
	default:
		return failed(envelope.KindVerifyResult, requestID, invalidInput("Provide one of file_url or file_path."))
	}
	if err != nil {
		logger.Warn("verify_local_prepare_failed", zap.Error(err))
		return localVerifyFailure(requestID, err)
	}

	headers := s.up.Headers(requestID, req.APIKey)
	headers["x-report-required"] = "true"
	headers["x-return-format"] = "link"
	logger.Info("verify_start",
		zap.Bool("has_file_url", req.FileURL != ""),
		zap.Bool("has_file_path", req.FilePath != ""),
	)

	resp, err := s.up.PostMultipart(ctx, PathVerify, upload, headers)
	if err != nil {
		logger.Warn("verify_transport_failed", zap.Error(err))
		return localVerifyFailure(requestID, err)
	}
	var payload verifyPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		logger.Warn("verify_nonjson_upstream", zap.String("sample", util.Abbreviate(string(resp.Body), 200)))
		return localVerifyFailure(requestID, err)
	}
	raw := util.RedactValue(resp.Map())
	verificationURL := payload.Data.File.DownloadURL

	statusCode := resp.Status
	if payload.StatusCode != nil {
		statusCode = *payload.StatusCode
	}
	status := strings.ToLower(payload.Status)
	vdata := payload.Data.Verification.Data
	missing := vdata == nil || (vdata.Result == "" && len(vdata.BlockchainData) == 0)
	if status == "error" || status == "fail" || status == "failed" || statusCode >= 400 || missing {
		var parts []string
		if statusCode >= 400 || payload.StatusCode != nil {
			parts = append(parts, strconv.Itoa(statusCode))
		}
		if payload.Message != "" {
			parts = append(parts, payload.Message)
		}
		human := strings.Join(parts, " | ")
		if human == "" {
			human = "Upstream verification error"
		}
		logger.Info("verify_upstream_error", zap.String("status", status), zap.Int("status_code", statusCode), zap.String("message", payload.Message))
		env := envelope.BuildVerify(envelope.VerifyFields{
			Result:          "error",
			VerificationURL: verificationURL,
			Summary:         human,
			Raw:             raw,
		})
		env.Error = &envelope.ErrorInfo{Code: upstreamCode(statusCode), Message: human}
		return envelope.Respond(firstNonEmpty(payload.RequestID, requestID), env)
	}

	var chain map[string]any
	if len(vdata.BlockchainData) > 0 {
		chain = vdata.BlockchainData[0]
	}
	result := vdata.Result
	if result == "" {
		result = "unknown"
	}
	env := envelope.BuildVerify(envelope.VerifyFields{
		Result:          result,
		BlockNumber:     intField(chain, "block_number"),
		TxPowID:         stringField(chain, "txpow_id"),
		TransactionID:   stringField(chain, "transactionid"),
		MatchedHash:     stringField(chain, "matched_hash"),
		UID:             payload.Data.Verification.NFTTxnID,
		VerificationURL: verificationURL,
		Raw:             raw,
	})
	logger.Info("verify_success", zap.String("result", result), zap.Bool("has_link", verificationURL != ""))
	return envelope.Respond(firstNonEmpty(payload.RequestID, requestID), env)
}

func localVerifyFailure(requestID string, err error) envelope.ToolResponse {
	env := envelope.BuildVerify(envelope.VerifyFields{Result: "error", Summary: LocalVerifyFailure})
	env.Error = &envelope.ErrorInfo{Code: errorCode(err), Message: LocalVerifyFailure, Details: err.Error()}
	return envelope.Respond(requestID, env)
}

func upstreamCode(status int) string {
	if status >= 400 {
		return errorCode(upstream.MapStatus(status, ""))
	}
	return envelope.CodeUpstreamError
}

func intField(m map[string]any, key string) *int64 {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return &n
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return &n
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
