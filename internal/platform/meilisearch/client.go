package meilisearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/contentlib/internal/platform/ctxutil"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

const (
	TaskEnqueued   = "enqueued"
	TaskProcessing = "processing"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
	TaskCanceled   = "canceled"
)

// TaskInfo is the summary Meilisearch returns for every asynchronous write.
type TaskInfo struct {
	TaskUID  int64  `json:"taskUid"`
	IndexUID string `json:"indexUid"`
	Status   string `json:"status"`
	Type     string `json:"type"`
}

type TaskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

type Task struct {
	UID      int64      `json:"uid"`
	IndexUID string     `json:"indexUid"`
	Status   string     `json:"status"`
	Type     string     `json:"type"`
	Error    *TaskError `json:"error,omitempty"`
}

type Index struct {
	UID        string `json:"uid"`
	PrimaryKey string `json:"primaryKey"`
}

type Key struct {
	UID     string   `json:"uid"`
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
	Indexes []string `json:"indexes"`
}

type SearchRequest struct {
	Q      string `json:"q"`
	Filter any    `json:"filter,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type SearchResponse struct {
	Hits               []map[string]any `json:"hits"`
	EstimatedTotalHits int64            `json:"estimatedTotalHits"`
	ProcessingTimeMs   int64            `json:"processingTimeMs"`
	Query              string           `json:"query"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

// Client is a thin REST client for the Meilisearch endpoints the search
// projector needs. It is safe for concurrent use.
type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client

	pollInterval time.Duration

	keyMu     sync.Mutex
	apiKeyUID string
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	httpTimeout := cfg.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 60 * time.Second
	}
	c := &Client{
		log:          log.With("service", "MeilisearchClient"),
		cfg:          cfg,
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		http:         &http.Client{Timeout: httpTimeout},
		pollInterval: 50 * time.Millisecond,
	}
	log.Info(
		"Meilisearch client configured",
		"url", c.baseURL,
		"index_prefix", cfg.IndexPrefix,
		"task_timeout", cfg.TaskTimeout.String(),
	)
	return c, nil
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, "health", http.MethodGet, "/health", nil, nil)
}

func (c *Client) CreateIndex(ctx context.Context, uid, primaryKey string) (*TaskInfo, error) {
	const op = "create_index"
	if strings.TrimSpace(uid) == "" {
		return nil, opErr(op, OperationErrorValidation, "index uid is required", nil)
	}
	req := map[string]any{"uid": uid}
	if primaryKey != "" {
		req["primaryKey"] = primaryKey
	}
	var info TaskInfo
	if err := c.doJSON(ctx, op, http.MethodPost, "/indexes", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetIndex returns nil, nil when the index does not exist.
func (c *Client) GetIndex(ctx context.Context, uid string) (*Index, error) {
	const op = "get_index"
	var idx Index
	err := c.doJSON(ctx, op, http.MethodGet, "/indexes/"+url.PathEscape(uid), nil, &idx)
	if err != nil {
		if IsIndexNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &idx, nil
}

func (c *Client) IndexExists(ctx context.Context, uid string) (bool, error) {
	idx, err := c.GetIndex(ctx, uid)
	if err != nil {
		return false, err
	}
	return idx != nil, nil
}

func (c *Client) DeleteIndex(ctx context.Context, uid string) (*TaskInfo, error) {
	var info TaskInfo
	if err := c.doJSON(ctx, "delete_index", http.MethodDelete, "/indexes/"+url.PathEscape(uid), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SwapIndexes exchanges the contents of a and b in one server-side task.
func (c *Client) SwapIndexes(ctx context.Context, a, b string) (*TaskInfo, error) {
	const op = "swap_indexes"
	if a == "" || b == "" || a == b {
		return nil, opErr(op, OperationErrorValidation, "two distinct index uids are required", nil)
	}
	req := []map[string]any{{"indexes": []string{a, b}}}
	var info TaskInfo
	if err := c.doJSON(ctx, op, http.MethodPost, "/swap-indexes", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) UpdateDistinctAttribute(ctx context.Context, uid, attribute string) (*TaskInfo, error) {
	var info TaskInfo
	if err := c.doJSON(ctx, "update_distinct_attribute", http.MethodPut, c.indexPath(uid, "/settings/distinct-attribute"), attribute, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) UpdateFilterableAttributes(ctx context.Context, uid string, attributes []string) (*TaskInfo, error) {
	if attributes == nil {
		attributes = []string{}
	}
	var info TaskInfo
	if err := c.doJSON(ctx, "update_filterable_attributes", http.MethodPut, c.indexPath(uid, "/settings/filterable-attributes"), attributes, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AddDocuments adds or fully replaces documents by primary key.
func (c *Client) AddDocuments(ctx context.Context, uid string, docs []map[string]any) (*TaskInfo, error) {
	return c.writeDocuments(ctx, "add_documents", http.MethodPost, uid, docs)
}

// UpdateDocuments merges the given fields into existing documents.
func (c *Client) UpdateDocuments(ctx context.Context, uid string, docs []map[string]any) (*TaskInfo, error) {
	return c.writeDocuments(ctx, "update_documents", http.MethodPut, uid, docs)
}

func (c *Client) writeDocuments(ctx context.Context, op, method, uid string, docs []map[string]any) (*TaskInfo, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	for i, d := range docs {
		if d == nil {
			return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("document %d is nil", i), nil)
		}
	}
	var info TaskInfo
	if err := c.doJSON(ctx, op, method, c.indexPath(uid, "/documents"), docs, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) DeleteDocument(ctx context.Context, uid, docID string) (*TaskInfo, error) {
	const op = "delete_document"
	if docID == "" {
		return nil, opErr(op, OperationErrorValidation, "document id is required", nil)
	}
	var info TaskInfo
	if err := c.doJSON(ctx, op, http.MethodDelete, c.indexPath(uid, "/documents/"+url.PathEscape(docID)), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Search(ctx context.Context, uid string, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.doJSON(ctx, "search", http.MethodPost, c.indexPath(uid, "/search"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTask(ctx context.Context, taskUID int64) (*Task, error) {
	var task Task
	if err := c.doJSON(ctx, "get_task", http.MethodGet, "/tasks/"+strconv.FormatInt(taskUID, 10), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// WaitForTask polls until the task finishes. A failed or canceled task is
// returned as an OperationError with code task_failed.
func (c *Client) WaitForTask(ctx context.Context, info *TaskInfo) (*Task, error) {
	const op = "wait_for_task"
	if info == nil {
		return nil, nil
	}
	ctx = ctxutil.Default(ctx)
	deadline := time.Now().Add(c.cfg.TaskTimeout)
	interval := c.pollInterval
	for {
		task, err := c.GetTask(ctx, info.TaskUID)
		if err != nil {
			return nil, err
		}
		switch task.Status {
		case TaskSucceeded:
			return task, nil
		case TaskFailed, TaskCanceled:
			e := &OperationError{Code: OperationErrorTaskFailed, Operation: op, Message: fmt.Sprintf("task %d %s", task.UID, task.Status)}
			if task.Error != nil {
				e.APICode = task.Error.Code
				e.Message = fmt.Sprintf("task %d %s: %s", task.UID, task.Status, task.Error.Message)
				if task.Error.Code == "index_not_found" {
					e.Code = OperationErrorIndexNotFound
				}
			}
			return task, e
		}
		if time.Now().After(deadline) {
			return task, opErr(op, OperationErrorTimeout, fmt.Sprintf("task %d still %s after %s", task.UID, task.Status, c.cfg.TaskTimeout), nil)
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return task, opErr(op, OperationErrorTimeout, "context done while waiting for task", ctx.Err())
		case <-timer.C:
		}
		if interval < time.Second {
			interval *= 2
		}
	}
}

// GetKey looks up an API key by its value or uid.
func (c *Client) GetKey(ctx context.Context, key string) (*Key, error) {
	var out Key
	if err := c.doJSON(ctx, "get_key", http.MethodGet, "/keys/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// APIKeyUID resolves and caches the uid of the configured API key; tenant
// tokens must name it.
func (c *Client) APIKeyUID(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKeyUID != "" {
		return c.apiKeyUID, nil
	}
	if c.cfg.APIKey == "" {
		return "", opErr("get_key", OperationErrorValidation, "MEILISEARCH_API_KEY is required for tenant tokens", nil)
	}
	k, err := c.GetKey(ctx, c.cfg.APIKey)
	if err != nil {
		return "", err
	}
	c.apiKeyUID = k.UID
	return c.apiKeyUID, nil
}

func IsIndexNotFound(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == OperationErrorIndexNotFound
}

func (c *Client) indexPath(uid, suffix string) string {
	return "/indexes/" + url.PathEscape(uid) + suffix
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "meilisearch request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("meilisearch http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Code != "" {
			e.APICode = ae.Code
			e.Message = ae.Message
			if ae.Code == "index_not_found" {
				e.Code = OperationErrorIndexNotFound
			}
		}
		return e
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode meilisearch response failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
