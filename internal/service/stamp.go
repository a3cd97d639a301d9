package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/upstream"
	"integritas-mcp/internal/util"
)

// StampDataRequest selects the data to stamp. Precedence is file_url, then
// file_path, then file_hash.
type StampDataRequest struct {
	FileHash string `json:"file_hash,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// StampHash submits a precomputed hash for stamping.
func (s *Service) StampHash(ctx context.Context, hash, requestID, apiKey string) envelope.ToolResponse {
	if requestID == "" {
		requestID = upstream.NewRequestID()
	}
	hexHash, err := util.NormalizeHash(hash)
	if err != nil {
		return failed(envelope.KindStampResult, requestID, invalidInput(err.Error()))
	}

	resp, err := s.up.PostJSON(ctx, PathStampHash, map[string]string{"hash": hexHash}, s.up.Headers(requestID, apiKey))
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.logger.Warn("stamp_hash_failed", zap.String("request_id", requestID), zap.Error(err))
		return failed(envelope.KindStampResult, requestID, err)
	}

	payload := resp.Map()
	if payload == nil {
		return failed(envelope.KindStampResult, requestID, &upstream.Error{Kind: upstream.KindPermanent, Status: resp.Status, Message: "Upstream returned a non-JSON response"})
	}
	inner := payload
	if data, ok := payload["data"].(map[string]any); ok {
		inner = data
	}
	uid := stringField(inner, "uid")
	summary := stringField(payload, "message")
	if summary == "" {
		summary = "Stamp accepted"
		if uid != "" {
			summary = fmt.Sprintf("Stamp accepted (uid=%s)", uid)
		}
	}
	status := "pending"
	if onchain, _ := inner["onchain"].(bool); onchain {
		status = "finalized"
	}
	env := envelope.BuildStamp(envelope.StampFields{
		Status:    status,
		UID:       uid,
		StampedAt: firstString(payload, inner, "timestamp", "stamped_at"),
		Summary:   summary,
		Raw:       util.RedactValue(payload),
	})
	return envelope.Respond(requestID, env)
}

// StampData uploads a file (or submits a hash) and returns the stamp result.
// Failures are reported in the envelope.
func (s *Service) StampData(ctx context.Context, req StampDataRequest, requestID string) envelope.ToolResponse {
	if requestID == "" {
		requestID = upstream.NewRequestID()
	}

	var upload upstream.Upload
	var err error
	switch {
	case strings.TrimSpace(req.FileURL) != "":
		upload, err = s.up.Fetch(ctx, strings.TrimSpace(req.FileURL))
	case strings.TrimSpace(req.FilePath) != "":
		upload, err = readLocalUpload(req.FilePath, "application/octet-stream")
	case strings.TrimSpace(req.FileHash) != "":
		return s.StampHash(ctx, req.FileHash, requestID, req.APIKey)
	default:
		err = invalidInput("Provide one of file_url, file_path or file_hash.")
	}
	if err != nil {
		s.logger.Warn("stamp_data_prepare_failed", zap.String("request_id", requestID), zap.Error(err))
		return failed(envelope.KindStampResult, requestID, err)
	}

	resp, err := s.up.PostMultipart(ctx, PathStampUpload, upload, s.up.Headers(requestID, req.APIKey))
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.logger.Warn("stamp_data_failed", zap.String("request_id", requestID), zap.Error(err))
		return failed(envelope.KindStampResult, requestID, err)
	}
	payload := resp.Map()
	if payload == nil {
		return failed(envelope.KindStampResult, requestID, &upstream.Error{Kind: upstream.KindPermanent, Status: resp.Status, Message: "Upstream returned a non-JSON response"})
	}

	data, _ := payload["data"].(map[string]any)
	forwarded, _ := data["forwarded"].(map[string]any)
	proofFile, _ := data["proofFile"].(map[string]any)
	env := envelope.BuildStamp(envelope.StampFields{
		Status:    stringField(payload, "status"),
		UID:       stringField(forwarded, "uid"),
		StampedAt: stringField(payload, "timestamp"),
		ProofURL:  firstString(proofFile, nil, "download_url", "downloadUrl"),
		Raw:       util.RedactValue(payload),
	})
	return envelope.Respond(requestID, env)
}

// readLocalUpload reads a local path or file:// URI for upload.
func readLocalUpload(pathOrURI, contentType string) (upstream.Upload, error) {
	local := util.ToLocalPath(strings.TrimSpace(pathOrURI))
	if local == "" {
		return upstream.Upload{}, invalidInput("file_path was empty.")
	}
	if reason := util.UploadDenyReason(local); reason != "" {
		return upstream.Upload{}, invalidInput(fmt.Sprintf("Refusing to upload %s: %s", reason, pathOrURI))
	}
	info, err := os.Stat(local)
	if err != nil || !info.Mode().IsRegular() {
		return upstream.Upload{}, notFoundError(pathOrURI)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return upstream.Upload{}, fmt.Errorf("read %s: %w", pathOrURI, err)
	}
	return upstream.Upload{
		FieldName:   "file",
		Filename:    util.SafeBasename(local, "upload.bin"),
		ContentType: contentType,
		Data:        data,
	}, nil
}

type notFoundError string

func (e notFoundError) Error() string        { return "File not found: " + string(e) }
func (e notFoundError) Is(target error) bool { return target == fs.ErrNotExist }

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// firstString returns the first non-empty key found in primary, then secondary.
func firstString(primary, secondary map[string]any, keys ...string) string {
	for _, m := range []map[string]any{primary, secondary} {
		for _, k := range keys {
			if v := stringField(m, k); v != "" {
				return v
			}
		}
	}
	return ""
}
