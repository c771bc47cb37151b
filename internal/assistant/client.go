package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/internal/metrics"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	betaHeader     = "assistants=v2"
	filePurpose    = "assistants"
)

// Config holds the settings for one remote assistant binding.
type Config struct {
	APIKey        string
	AssistantID   string
	BaseURL       string
	Timeout       time.Duration
	AnalysisModel string
}

// Client is a thin, stateless request/response binding to the remote
// assistant API. One Client is bound to exactly one assistant
// configuration. No operation is retried at this layer; status polling
// resilience lives in the Poller.
type Client struct {
	apiKey        string
	assistantID   string
	baseURL       string
	analysisModel string
	httpc         *http.Client
	logger        *zap.Logger
}

// NewClient creates a client bound to one assistant configuration.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = defaultAnalysisModel
	}
	return &Client{
		apiKey:        cfg.APIKey,
		assistantID:   cfg.AssistantID,
		baseURL:       cfg.BaseURL,
		analysisModel: cfg.AnalysisModel,
		httpc:         &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

// AssistantID returns the assistant this client is bound to.
func (c *Client) AssistantID() string {
	return c.assistantID
}

// CreateThread creates a fresh conversation thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "create thread", http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", err
	}
	c.logger.Info("Thread created", zap.String("thread_id", out.ID))
	return out.ID, nil
}

// CreateMessage appends a plain user message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, content string) (string, error) {
	payload := map[string]interface{}{
		"role":    "user",
		"content": content,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "create message", http.MethodPost, "/threads/"+threadID+"/messages", payload, &out); err != nil {
		return "", err
	}
	c.logger.Debug("Message created",
		zap.String("thread_id", threadID),
		zap.String("message_id", out.ID),
	)
	return out.ID, nil
}

// CreateMessageWithAttachments appends a user message carrying file
// attachments. Each attachment declares both remote tool capabilities so
// the assistant can either search the file contents or execute code
// against them.
func (c *Client) CreateMessageWithAttachments(ctx context.Context, threadID, content string, fileIDs []string) (string, error) {
	attachments := make([]map[string]interface{}, 0, len(fileIDs))
	for _, fid := range fileIDs {
		attachments = append(attachments, map[string]interface{}{
			"file_id": fid,
			"tools": []map[string]string{
				{"type": "file_search"},
				{"type": "code_interpreter"},
			},
		})
	}
	payload := map[string]interface{}{
		"role":        "user",
		"content":     content,
		"attachments": attachments,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "create message with attachments", http.MethodPost, "/threads/"+threadID+"/messages", payload, &out); err != nil {
		return "", err
	}
	c.logger.Debug("Message with attachments created",
		zap.String("thread_id", threadID),
		zap.String("message_id", out.ID),
		zap.Int("attachments", len(fileIDs)),
	)
	return out.ID, nil
}

// CreateRun starts a run on a thread bound to this client's assistant.
func (c *Client) CreateRun(ctx context.Context, threadID string) (string, error) {
	payload := map[string]string{"assistant_id": c.assistantID}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "create run", http.MethodPost, "/threads/"+threadID+"/runs", payload, &out); err != nil {
		return "", err
	}
	c.logger.Info("Run created",
		zap.String("thread_id", threadID),
		zap.String("run_id", out.ID),
	)
	return out.ID, nil
}

// GetRunStatus fetches a run's current status snapshot.
func (c *Client) GetRunStatus(ctx context.Context, threadID, runID string) (*RunStatus, error) {
	var out RunStatus
	if err := c.doJSON(ctx, "get run status", http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitToolOutputs submits outputs for a set of pending tool calls.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	payload := map[string]interface{}{"tool_outputs": outputs}
	return c.doJSON(ctx, "submit tool outputs", http.MethodPost,
		"/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", payload, nil)
}

// ListMessages returns a thread's messages in the API's order.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var out struct {
		Data []Message `json:"data"`
	}
	if err := c.doJSON(ctx, "list messages", http.MethodGet, "/threads/"+threadID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UploadFile uploads a payload as a remote file resource and returns its
// identifier.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", filePurpose); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy file payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RemoteError{Op: "upload file", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	metrics.FilesUploaded.Inc()
	c.logger.Info("File uploaded",
		zap.String("file_id", out.ID),
		zap.String("filename", filename),
	)
	return out.ID, nil
}

// ListFiles lists every file resource in the remote store.
func (c *Client) ListFiles(ctx context.Context) ([]FileObject, error) {
	var out struct {
		Data []FileObject `json:"data"`
	}
	if err := c.doJSON(ctx, "list files", http.MethodGet, "/files", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DeleteFile removes one remote file resource. The remote side signals
// success with 204 only.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/files/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		raw, _ := io.ReadAll(resp.Body)
		return &RemoteError{Op: "delete file", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	c.logger.Info("File deleted", zap.String("file_id", fileID))
	return nil
}

// doJSON issues one JSON request and decodes the response into out. Any
// non-2xx status yields a *RemoteError.
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
