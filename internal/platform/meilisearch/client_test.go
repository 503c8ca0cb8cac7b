package meilisearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/contentlib/internal/platform/logger"
)

func TestClientSwapIndexesRequestShape(t *testing.T) {
	var captured []map[string][]string
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/swap-indexes" {
			t.Fatalf("path: want=%q got=%q", "/swap-indexes", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer master-key" {
			t.Fatalf("auth header: want=%q got=%q", "Bearer master-key", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusAccepted, map[string]any{"taskUid": 7, "status": "enqueued", "type": "indexSwap"}), nil
	})

	info, err := c.SwapIndexes(context.Background(), "studio", "studio_rebuild")
	if err != nil {
		t.Fatalf("SwapIndexes: %v", err)
	}
	if info.TaskUID != 7 {
		t.Fatalf("task uid: want=7 got=%d", info.TaskUID)
	}
	if len(captured) != 1 || len(captured[0]["indexes"]) != 2 || captured[0]["indexes"][1] != "studio_rebuild" {
		t.Fatalf("swap body: got=%v", captured)
	}

	if _, err := c.SwapIndexes(context.Background(), "same", "same"); err == nil {
		t.Fatalf("SwapIndexes same uid: expected validation error")
	}
}

func TestClientGetIndexNotFoundReturnsNil(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusNotFound, map[string]any{
			"message": "Index `missing` not found.",
			"code":    "index_not_found",
			"type":    "invalid_request",
		}), nil
	})
	idx, err := c.GetIndex(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if idx != nil {
		t.Fatalf("GetIndex: want=nil got=%+v", idx)
	}
}

func TestClientErrorCarriesAPICode(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusBadRequest, map[string]any{
			"message": "Index `x` already exists.",
			"code":    "index_already_exists",
		}), nil
	})
	_, err := c.CreateIndex(context.Background(), "x", "id")
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("want OperationError got=%v", err)
	}
	if oe.Code != OperationErrorRequestFailed || oe.APICode != "index_already_exists" || oe.StatusCode != http.StatusBadRequest {
		t.Fatalf("error fields: got=%+v", oe)
	}
}

func TestClientTransportErrorClassified(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	_, err := c.DeleteDocument(context.Background(), "studio", "doc-1")
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorTimeout {
		t.Fatalf("want timeout OperationError got=%v", err)
	}
}

func TestClientWaitForTaskPollsUntilDone(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/tasks/42" {
			t.Fatalf("path: want=%q got=%q", "/tasks/42", r.URL.Path)
		}
		n := atomic.AddInt32(&calls, 1)
		status := TaskProcessing
		if n >= 3 {
			status = TaskSucceeded
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"uid": 42, "status": status}), nil
	})
	task, err := c.WaitForTask(context.Background(), &TaskInfo{TaskUID: 42})
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if task.Status != TaskSucceeded {
		t.Fatalf("status: want=%s got=%s", TaskSucceeded, task.Status)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("polls: want=3 got=%d", calls)
	}
}

func TestClientWaitForTaskFailure(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"uid":    9,
			"status": TaskFailed,
			"error":  map[string]any{"message": "Index `tmp` not found.", "code": "index_not_found"},
		}), nil
	})
	_, err := c.WaitForTask(context.Background(), &TaskInfo{TaskUID: 9})
	if !IsIndexNotFound(err) {
		t.Fatalf("want index_not_found got=%v", err)
	}
}

func TestClientWaitForTaskTimeout(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"uid": 1, "status": TaskEnqueued}), nil
	})
	c.cfg.TaskTimeout = 5 * time.Millisecond
	_, err := c.WaitForTask(context.Background(), &TaskInfo{TaskUID: 1})
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorTimeout {
		t.Fatalf("want timeout got=%v", err)
	}
}

func TestGenerateTenantTokenClaims(t *testing.T) {
	var keyCalls int32
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if !strings.HasPrefix(r.URL.Path, "/keys/") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		atomic.AddInt32(&keyCalls, 1)
		return jsonResponse(t, http.StatusOK, map[string]any{"uid": "key-uid-1", "key": "master-key"}), nil
	})

	exp := time.Now().Add(time.Hour)
	rules := SearchRules{"studio": {"filter": "org IN [\"OrgX\"]"}}
	for i := 0; i < 2; i++ {
		signed, err := c.GenerateTenantToken(context.Background(), rules, exp)
		if err != nil {
			t.Fatalf("GenerateTenantToken: %v", err)
		}
		parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
			return []byte("master-key"), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			t.Fatalf("parse token: %v", err)
		}
		claims := parsed.Claims.(jwt.MapClaims)
		if claims["apiKeyUid"] != "key-uid-1" {
			t.Fatalf("apiKeyUid: want=%q got=%v", "key-uid-1", claims["apiKeyUid"])
		}
		sr, ok := claims["searchRules"].(map[string]any)
		if !ok {
			t.Fatalf("searchRules type: got=%T", claims["searchRules"])
		}
		studio, _ := sr["studio"].(map[string]any)
		if studio["filter"] != "org IN [\"OrgX\"]" {
			t.Fatalf("filter: got=%v", studio["filter"])
		}
	}
	if atomic.LoadInt32(&keyCalls) != 1 {
		t.Fatalf("api key uid should be cached: calls=%d", keyCalls)
	}
}

func newTestClient(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *Client {
	t.Helper()
	return &Client{
		log:          newTestLogger(t),
		cfg:          Config{URL: "http://meili.local", APIKey: "master-key", TaskTimeout: time.Second},
		baseURL:      "http://meili.local",
		http:         &http.Client{Transport: roundTripFunc(roundTrip)},
		pollInterval: time.Millisecond,
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
