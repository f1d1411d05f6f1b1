package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.0-flash-exp"
)

// Sampling is the fixed generation configuration sent with every prompt.
type Sampling struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	CandidateCount  int
}

// DefaultSampling keeps answers short and a little unpredictable.
var DefaultSampling = Sampling{
	Temperature:     0.7,
	TopP:            0.8,
	TopK:            50,
	MaxOutputTokens: 50,
	CandidateCount:  1,
}

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiClient calls the generateContent REST endpoint over fasthttp.
type GeminiClient struct {
	baseURL  string
	model    string
	apiKey   string
	http     *fasthttp.Client
	timeout  time.Duration
	retryMax int
	sampling Sampling
	logger   *zap.Logger
}

type Option func(*GeminiClient)

func WithBaseURL(u string) Option {
	return func(c *GeminiClient) {
		if strings.TrimSpace(u) != "" {
			c.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
		}
	}
}

func WithModel(m string) Option {
	return func(c *GeminiClient) {
		if strings.TrimSpace(m) != "" {
			c.model = strings.TrimSpace(m)
		}
	}
}

// WithTimeout bounds each HTTP attempt. Zero leaves the call unbounded unless ctx has a deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *GeminiClient) { c.timeout = d }
}

func WithRetry(max int) Option {
	return func(c *GeminiClient) { c.retryMax = max }
}

func WithSampling(s Sampling) Option {
	return func(c *GeminiClient) { c.sampling = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *GeminiClient) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithHTTPClient(h *fasthttp.Client) Option {
	return func(c *GeminiClient) {
		if h != nil {
			c.http = h
		}
	}
}

func NewGeminiClient(apiKey string, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		baseURL:  DefaultGeminiBaseURL,
		model:    DefaultGeminiModel,
		apiKey:   strings.TrimSpace(apiKey),
		http:     &fasthttp.Client{MaxConnsPerHost: 32},
		retryMax: 1,
		sampling: DefaultSampling,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GeminiClient) Model() string { return c.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	CandidateCount  int     `json:"candidateCount"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings,omitempty"`
}

type candidate struct {
	Content      *content `json:"content"`
	FinishReason string   `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

// Propose sends one prompt. Every failure is reported as ErrProposalUnavailable.
func (c *GeminiClient) Propose(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key not configured", ErrProposalUnavailable)
	}
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.sampling.Temperature,
			TopP:            c.sampling.TopP,
			TopK:            c.sampling.TopK,
			MaxOutputTokens: c.sampling.MaxOutputTokens,
			CandidateCount:  c.sampling.CandidateCount,
		},
	}
	for _, cat := range harmCategories {
		body.SafetySettings = append(body.SafetySettings, safetySetting{Category: cat, Threshold: "BLOCK_NONE"})
	}

	var out generateResponse
	if err := c.doJSON(ctx, "/v1beta/models/"+c.model+":generateContent", body, &out); err != nil {
		return "", err
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrProposalUnavailable, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrProposalUnavailable)
	}
	first := out.Candidates[0]
	if first.Content == nil || len(first.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidate (finish=%s)", ErrProposalUnavailable, first.FinishReason)
	}
	var sb strings.Builder
	for _, p := range first.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: blank text (finish=%s)", ErrProposalUnavailable, first.FinishReason)
	}
	return text, nil
}

func (c *GeminiClient) doJSON(ctx context.Context, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %s", ErrProposalUnavailable, err)
	}
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.SetBody(payload)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s", ErrProposalUnavailable, err)
		}
		started := time.Now()
		err := c.do(ctx, req, resp)
		if err != nil {
			lastErr = fmt.Errorf("%w: request failed: %s", ErrProposalUnavailable, err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = fmt.Errorf("%w: status=%d body=%s", ErrProposalUnavailable, status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("%w: decode response: %s", ErrProposalUnavailable, err)
			}
			c.logger.Debug("llm_call", zap.String("model", c.model), zap.Int("attempt", attempt), zap.Duration("latency", time.Since(started)))
			return nil
		}
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

func (c *GeminiClient) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		clientDL := time.Now().Add(c.timeout)
		if !ok || clientDL.Before(deadline) {
			deadline, ok = clientDL, true
		}
	}
	if ok {
		return c.http.DoDeadline(req, resp, deadline)
	}
	return c.http.Do(req, resp)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
