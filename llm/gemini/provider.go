package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/internal/tlsutil"
	"github.com/BaSui01/visionflow/llm"
	"github.com/BaSui01/visionflow/types"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
)

// Config Gemini 客户端配置
type Config struct {
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// Provider 通过 generateContent REST 接口调用 Gemini
// 1. 使用 x-goog-api-key 请求头认证
// 2. 图片以 inlineData（base64）随消息发送
// 3. assistant 角色映射为 model
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建 Gemini Provider
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Provider{
		cfg:    cfg,
		client: tlsutil.HTTPClient(timeout),
		logger: logger.With(zap.String("component", "gemini")),
	}
}

func (p *Provider) Name() string { return "gemini" }

// Gemini 消息结构
type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
	ResponseID    string               `json:"responseId,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// convertParts 将内容片段转换为 Gemini parts
func convertParts(parts []types.ContentPart) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case types.PartText:
			if part.Text != "" {
				out = append(out, geminiPart{Text: part.Text})
			}
		case types.PartImage:
			if part.Image == nil {
				continue
			}
			if gp, ok := imagePart(*part.Image); ok {
				out = append(out, gp)
			}
		}
	}
	return out
}

func imagePart(img types.ImageContent) (geminiPart, bool) {
	data := img.Data
	mime := img.MimeType
	if data == "" && strings.HasPrefix(img.URL, "data:") {
		header, payload, ok := strings.Cut(strings.TrimPrefix(img.URL, "data:"), ",")
		if !ok {
			return geminiPart{}, false
		}
		data = payload
		if mime == "" {
			mime = strings.TrimSuffix(header, ";base64")
		}
	}
	if data != "" {
		return geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: data}}, true
	}
	if img.URL != "" {
		return geminiPart{FileData: &geminiFileData{MimeType: mime, FileURI: img.URL}}, true
	}
	return geminiPart{}, false
}

// convertToGeminiContents 将统一格式转换为 Gemini 格式
func convertToGeminiContents(req *llm.GenerateRequest) (*geminiContent, []geminiContent) {
	var system []geminiPart
	if req.Instructions != "" {
		system = append(system, geminiPart{Text: req.Instructions})
	}

	var contents []geminiContent
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			system = append(system, convertParts(m.Content)...)
			continue
		}

		role := string(m.Role)
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		parts := convertParts(m.Content)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}

	if req.TurnInstruction != "" {
		if len(contents) == 0 {
			// generateContent rejects an empty contents list.
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.TurnInstruction}}})
		} else {
			system = append(system, geminiPart{Text: req.TurnInstruction})
		}
	}

	var systemInstruction *geminiContent
	if len(system) > 0 {
		systemInstruction = &geminiContent{Parts: system}
	}
	return systemInstruction, contents
}

// Generate 调用 generateContent 生成一条回复
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "nil generate request").WithProvider(p.Name())
	}

	systemInstruction, contents := convertToGeminiContents(req)
	if len(contents) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "nothing to generate from").WithProvider(p.Name())
	}

	body := geminiRequest{
		Contents:          contents,
		SystemInstruction: systemInstruction,
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if temperature > 0 || maxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := llm.ReadErrorMessage(resp.Body)
		return nil, llm.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name())
	}

	out := toGenerateResponse(geminiResp, p.Name(), model)
	if out.Text == "" {
		return nil, types.NewError(types.ErrEmptyModelOutput, "model returned no text").
			WithProvider(p.Name())
	}

	p.logger.Debug("reply generated",
		zap.String("model", model),
		zap.Int("messages", len(contents)),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return out, nil
}

func toGenerateResponse(gr geminiResponse, provider, model string) *llm.GenerateResponse {
	resp := &llm.GenerateResponse{
		ID:       gr.ResponseID,
		Provider: provider,
		Model:    model,
	}
	if gr.ModelVersion != "" {
		resp.Model = gr.ModelVersion
	}

	// 只取第一个候选
	if len(gr.Candidates) > 0 {
		c := gr.Candidates[0]
		var sb strings.Builder
		for _, part := range c.Content.Parts {
			sb.WriteString(part.Text)
		}
		resp.Text = sb.String()
		resp.FinishReason = c.FinishReason
	}

	if gr.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}
	return resp
}
