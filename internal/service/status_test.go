package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integritas-mcp/internal/envelope"
)

const (
	uidSuccess  = "0x54C8EF1CFCE47CCB1ACE"
	uidNotFound = "0xEDA114A9FDE6AC51DC0B"
	uidPending  = "0xPENDING"
)

func successPayload(uid string) string {
	return fmt.Sprintf(`{"status":"success","data":[{"status":true,"uid":%q,"data":"0x941D","number":201,
		"datecreated":"2025-09-02 07:37:15","datestamped":"2025-09-02 07:38:03",
		"root":"0xEE0E","proof":"0x0001","address":"0xFFEEDD","onchain":true}]}`, uid)
}

func pendingPayload(uid string) string {
	return fmt.Sprintf(`{"status":"success","data":[{"status":true,"uid":%q,"number":201,"onchain":false}]}`, uid)
}

func statusHandler(t *testing.T, routes map[string]func(call int32) (int, string)) http.Handler {
	t.Helper()
	counts := map[string]*atomic.Int32{}
	for uid := range routes {
		counts[uid] = &atomic.Int32{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimPrefix(r.URL.Path, "/v1/uid/status/")
		route, ok := routes[uid]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status, body := route(counts[uid].Add(1))
		writeJSON(w, status, body)
	})
}

func TestStampStatusSuccessDirect(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidSuccess: func(int32) (int, string) { return 200, successPayload(uidSuccess) },
	}), Options{})

	results := svc.Statuses(context.Background(), []string{uidSuccess}, "r", "")
	require.Len(t, results, 1)
	assert.Equal(t, uidSuccess, results[0].UID)
	assert.True(t, results[0].Onchain)
	assert.Equal(t, "0xEE0E", results[0].Root)
	require.NotNil(t, results[0].Number)
	assert.Equal(t, int64(201), *results[0].Number)
	assert.Equal(t, envelope.StatusFinalized, results[0].State())
}

func TestStampStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, nil), Options{})

	results := svc.Statuses(context.Background(), []string{uidNotFound}, "r", "")
	require.Len(t, results, 1)
	assert.False(t, results[0].Status)
	assert.Contains(t, strings.ToLower(results[0].Error), "not found")
	assert.Equal(t, envelope.StatusFailed, results[0].State())
}

func TestStampStatusPollsUntilOnchain(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidPending: func(call int32) (int, string) {
			if call == 1 {
				return 200, pendingPayload(uidPending)
			}
			return 200, successPayload(uidPending)
		},
	}), Options{})

	results := svc.Statuses(context.Background(), []string{uidPending}, "r", "")
	require.Len(t, results, 1)
	assert.True(t, results[0].Onchain)
	assert.Empty(t, results[0].Error)
}

func TestStampStatusTimesOut(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidPending: func(int32) (int, string) { return 200, pendingPayload(uidPending) },
	}), Options{PollInterval: time.Second, PollMaxAttempts: 1})

	results := svc.Statuses(context.Background(), []string{uidPending}, "r", "")
	require.Len(t, results, 1)
	assert.Equal(t, "Polling timed out after 1 seconds", results[0].Error)
	assert.Equal(t, envelope.StatusPending, results[0].State())
}

func TestStampStatusHonorsCancellation(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidPending: func(int32) (int, string) { return 200, pendingPayload(uidPending) },
	}), Options{PollInterval: time.Hour, PollMaxAttempts: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	results := svc.Statuses(ctx, []string{uidPending}, "r", "")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "Polling canceled", results[0].Error)
}

func TestStampStatusKeepsOrderAndAggregates(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidSuccess: func(int32) (int, string) { return 200, successPayload(uidSuccess) },
		"0xBAD":    func(int32) (int, string) { return 200, `{"data":[{"status":false,"error":"bad uid"}]}` },
		"0xDENIED": func(int32) (int, string) { return 401, `{"message":"Invalid API key"}` },
	}), Options{})

	resp := svc.StampStatus(context.Background(), StampStatusRequest{
		UIDs: []string{"0xBAD", uidSuccess, uidNotFound, "0xDENIED"},
	}, "req-3")
	env := resp.StructuredContent
	items, ok := env.Data.([]envelope.StatusItem)
	require.True(t, ok)
	require.Len(t, items, 4)
	assert.Equal(t, "0xBAD", items[0].UID)
	assert.Equal(t, "bad uid", items[0].Error)
	assert.Equal(t, uidSuccess, items[1].UID)
	assert.Equal(t, "UID not found", items[2].Error)
	assert.Contains(t, items[3].Error, "Invalid API key")
	assert.Equal(t, envelope.StatusUnknown, env.Status)
	assertSchemaValid(t, resp)
}

func TestStampStatusRequiresUIDs(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, nil), Options{})
	resp := svc.StampStatus(context.Background(), StampStatusRequest{}, "r")
	require.NotNil(t, resp.StructuredContent.Error)
	assert.Equal(t, envelope.CodeInvalidInput, resp.StructuredContent.Error.Code)
}

func TestStampStatusRetriesTransientErrors(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidSuccess: func(call int32) (int, string) {
			if call == 1 {
				return 503, `{"message":"busy"}`
			}
			return 200, successPayload(uidSuccess)
		},
	}), Options{PollMaxAttempts: 3})

	results := svc.Statuses(context.Background(), []string{uidSuccess}, "r", "")
	require.Len(t, results, 1)
	assert.True(t, results[0].Onchain)
	assert.Empty(t, results[0].Error)
}

func TestStampStatusPermanentErrorStopsPolling(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidSuccess: func(call int32) (int, string) {
			calls.Add(1)
			return 401, `{"message":"bad key"}`
		},
	}), Options{PollMaxAttempts: 3})

	results := svc.Statuses(context.Background(), []string{uidSuccess}, "r", "")
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestStampStatusAcceptsStringNumber(t *testing.T) {
	svc, _ := newTestService(t, statusHandler(t, map[string]func(int32) (int, string){
		uidSuccess: func(int32) (int, string) {
			return 200, fmt.Sprintf(`{"data":[{"status":true,"uid":%q,"number":"201","onchain":true}]}`, uidSuccess)
		},
	}), Options{})

	results := svc.Statuses(context.Background(), []string{uidSuccess}, "r", "")
	require.Len(t, results, 1)
	assert.True(t, results[0].Onchain)
	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Number)
	assert.Equal(t, int64(201), *results[0].Number)
}
