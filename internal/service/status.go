package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/upstream"
)

// StampStatusRequest lists the UIDs to look up.
type StampStatusRequest struct {
	UIDs   []string `json:"uids"`
	APIKey string   `json:"api_key,omitempty"`
}

// StampStatusResult is the outcome of one UID lookup. Error is set on failure.
type StampStatusResult struct {
	UID         string `json:"uid"`
	Status      bool   `json:"status"`
	Onchain     bool   `json:"onchain"`
	Data        string `json:"data,omitempty"`
	Number      *int64 `json:"number,omitempty"`
	DateCreated string `json:"datecreated,omitempty"`
	DateStamped string `json:"datestamped,omitempty"`
	Root        string `json:"root,omitempty"`
	Proof       string `json:"proof,omitempty"`
	Address     string `json:"address,omitempty"`
	Error       string `json:"error,omitempty"`

	state envelope.Status
}

// UnmarshalJSON accepts number as a JSON number or a numeric string.
func (r *StampStatusResult) UnmarshalJSON(data []byte) error {
	type plain StampStatusResult
	aux := struct {
		*plain
		Number json.RawMessage `json:"number"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Number = parseNumber(aux.Number)
	return nil
}

func parseNumber(raw json.RawMessage) *int64 {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return nil
		}
		n = int64(f)
	}
	return &n
}

// State is the envelope status for this lookup.
func (r StampStatusResult) State() envelope.Status {
	if r.state != "" {
		return r.state
	}
	switch {
	case r.Onchain:
		return envelope.StatusFinalized
	case r.Error != "":
		return envelope.StatusFailed
	}
	return envelope.StatusUnknown
}

// Statuses polls every UID concurrently and returns results in request order.
func (s *Service) Statuses(ctx context.Context, uids []string, requestID, apiKey string) []StampStatusResult {
	headers := s.up.Headers(requestID, apiKey)
	return iter.Map(uids, func(uid *string) StampStatusResult {
		return s.pollUID(ctx, strings.TrimSpace(*uid), headers)
	})
}

// StampStatus looks up the stamp status of each requested UID.
func (s *Service) StampStatus(ctx context.Context, req StampStatusRequest, requestID string) envelope.ToolResponse {
	if requestID == "" {
		requestID = upstream.NewRequestID()
	}
	if len(req.UIDs) == 0 {
		return failed(envelope.KindStampStatus, requestID, invalidInput("uids must contain at least one UID"))
	}
	results := s.Statuses(ctx, req.UIDs, requestID, req.APIKey)

	items := make([]envelope.StatusItem, 0, len(results))
	for _, r := range results {
		items = append(items, envelope.StatusItem{UID: r.UID, Status: r.State(), Error: r.Error, Data: r})
	}
	return envelope.Respond(requestID, envelope.BuildStampStatus(items))
}

func (s *Service) pollUID(ctx context.Context, uid string, headers map[string]string) StampStatusResult {
	if uid == "" {
		return StampStatusResult{UID: uid, Error: "UID is empty"}
	}
	path := fmt.Sprintf(PathStampStatus, url.PathEscape(uid))
	logger := s.logger.With(zap.String("uid", uid))

	for attempt := 1; attempt <= s.pollMaxAttempts; attempt++ {
		resp, err := s.up.GetJSON(ctx, path, headers)
		if err == nil && resp.Status == http.StatusNotFound {
			logger.Warn("uid_not_found")
			return StampStatusResult{UID: uid, Error: "UID not found"}
		}
		if err == nil {
			err = resp.Err()
		}
		if err != nil {
			var ue *upstream.Error
			if errors.As(err, &ue) && ue.Retryable() && attempt < s.pollMaxAttempts && ctx.Err() == nil {
				logger.Warn("uid_status_retry", zap.Int("attempt", attempt), zap.Error(err))
				if sleepCtx(ctx, s.pollInterval) != nil {
					return StampStatusResult{UID: uid, Error: "Polling canceled", state: envelope.StatusPending}
				}
				continue
			}
			logger.Warn("uid_status_upstream_error", zap.Error(err))
			return StampStatusResult{UID: uid, Error: err.Error()}
		}

		item, err := firstStatusItem(resp)
		if err != nil {
			logger.Warn("uid_status_bad_payload", zap.Error(err))
			return StampStatusResult{UID: uid, Error: err.Error()}
		}
		if item.UID == "" {
			item.UID = uid
		}
		if item.Onchain {
			return item
		}
		if !item.Status {
			if item.Error == "" {
				item.Error = "Unknown error"
			}
			logger.Warn("uid_error_payload", zap.String("error", item.Error))
			return item
		}

		logger.Info("uid_pending", zap.Int("attempt", attempt))
		if attempt == s.pollMaxAttempts {
			break
		}
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			item.Error = "Polling canceled"
			item.state = envelope.StatusPending
			return item
		}
	}

	logger.Warn("uid_polling_timeout")
	waited := time.Duration(s.pollMaxAttempts) * s.pollInterval
	return StampStatusResult{
		UID:   uid,
		Error: fmt.Sprintf("Polling timed out after %d seconds", int(waited.Seconds())),
		state: envelope.StatusPending,
	}
}

func firstStatusItem(resp *upstream.Response) (StampStatusResult, error) {
	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return StampStatusResult{}, err
	}
	var item StampStatusResult
	if len(payload.Data) == 0 {
		return item, nil
	}
	if err := json.Unmarshal(payload.Data[0], &item); err != nil {
		return StampStatusResult{}, fmt.Errorf("decode uid status: %w", err)
	}
	return item, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
