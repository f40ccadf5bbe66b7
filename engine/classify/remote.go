package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fsrp-dev/crashbot/pkg/resilience"
	"golang.org/x/time/rate"
)

const systemPrompt = `You are CrashBot, an AI assistant specialized in analyzing FiveM crash logs for the Florida State RP community.

Your expertise includes:
- FiveM client crashes and their causes
- GTA V game engine errors
- Lua scripting errors in FiveM resources
- Graphics driver issues (NVIDIA, AMD)
- Memory-related crashes
- Server resource conflicts
- Asset streaming errors (YFT, YDR, TXD files)
- Framework errors (ESX, QBCore, VORP)
- Native function errors

When analyzing crash logs:
1. Identify the PRIMARY cause of the crash
2. Determine if it's a CLIENT issue (user's computer) or RESOURCE issue (server-side script)
3. For RESOURCE issues, try to identify the specific resource name from the log
4. Provide clear, actionable solutions
5. Be friendly and helpful

Response format:
- crash_type: "client" | "resource" | "unknown"
- resource_name: string or null (if resource issue, extract the resource name)
- cause: Brief title of the crash cause
- description: Detailed explanation of what happened
- solutions: Array of step-by-step solutions
- severity: "low" | "medium" | "high"
- auto_reported: boolean (true if this is a resource issue that should be logged)

Common FiveM crash locations:
- AppData/Local/FiveM/FiveM.app/crashes - crash dumps
- AppData/Local/FiveM/FiveM.app/logs - log files
- citizen-resources - resource errors

Always be encouraging and let users know that resource issues will be automatically reported to the development team.`

const userPromptFormat = "Please analyze this FiveM crash log and provide your analysis in JSON format:\n\n```\n%s\n```\n\nRespond ONLY with valid JSON in this exact format:\n{\n    \"crash_type\": \"client\" | \"resource\" | \"unknown\",\n    \"resource_name\": \"resource_name_here\" or null,\n    \"cause\": \"Brief title\",\n    \"description\": \"Detailed explanation\",\n    \"solutions\": [\"Solution 1\", \"Solution 2\", \"Solution 3\"],\n    \"severity\": \"low\" | \"medium\" | \"high\",\n    \"auto_reported\": true or false\n}"

// RemoteOptions configures the model-backed strategy.
type RemoteOptions struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// Rate and Burst bound outbound calls to the model endpoint.
	Rate  rate.Limit
	Burst int
}

// DefaultRemoteOptions returns sensible defaults.
func DefaultRemoteOptions() RemoteOptions {
	return RemoteOptions{
		BaseURL:   "https://api.anthropic.com",
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 1024,
		Timeout:   60 * time.Second,
		Rate:      rate.Every(time.Second),
		Burst:     3,
	}
}

// RemoteStrategy sends the log to an Anthropic-compatible messages endpoint
// and parses the JSON object out of the reply. Transport failures, non-2xx
// statuses, and a tripped breaker all surface as strategy errors so the
// caller falls back; a reply that merely lacks parseable JSON degrades to the
// fixed "Analysis Error" result instead.
type RemoteStrategy struct {
	apiKey  string
	opts    RemoteOptions
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewRemoteStrategy creates the model-backed strategy.
func NewRemoteStrategy(apiKey string, opts RemoteOptions) *RemoteStrategy {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultRemoteOptions().BaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultRemoteOptions().Model
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultRemoteOptions().MaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRemoteOptions().Timeout
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRemoteOptions().Rate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultRemoteOptions().Burst
	}
	return &RemoteStrategy{
		apiKey:  apiKey,
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(opts.Rate, opts.Burst),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

func (s *RemoteStrategy) Name() string { return "remote" }

// messagesRequest is the Anthropic messages API request body.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse carries the minimum we need from the reply.
type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// wireAnalysis is the JSON object shape the prompt demands from the model.
type wireAnalysis struct {
	CrashType    string   `json:"crash_type"`
	ResourceName *string  `json:"resource_name"`
	Cause        string   `json:"cause"`
	Description  string   `json:"description"`
	Solutions    []string `json:"solutions"`
	Severity     string   `json:"severity"`
	AutoReported bool     `json:"auto_reported"`
}

// Analyze issues exactly one completion call. No internal retry: fallback
// policy lives in the Classifier.
func (s *RemoteStrategy) Analyze(ctx context.Context, logText string) (Analysis, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Analysis{}, fmt.Errorf("remote: rate limit: %w", err)
	}

	var text string
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		text, err = s.complete(ctx, logText)
		return err
	})
	if err != nil {
		return Analysis{}, err
	}

	return parseModelReply(text), nil
}

func (s *RemoteStrategy) complete(ctx context.Context, logText string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     s.opts.Model,
		MaxTokens: s.opts.MaxTokens,
		System:    systemPrompt,
		Messages: []message{
			{Role: "user", Content: fmt.Sprintf(userPromptFormat, logText)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("remote: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote: status %d: %s", resp.StatusCode, raw)
	}

	var mr messagesResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return "", fmt.Errorf("remote: decode response: %w", err)
	}
	if mr.Error.Message != "" {
		return "", fmt.Errorf("remote: api error: %s", mr.Error.Message)
	}
	if len(mr.Content) == 0 {
		return "", fmt.Errorf("remote: empty completion")
	}
	return mr.Content[0].Text, nil
}

// parseModelReply extracts and parses the first balanced JSON object from the
// model's free-form reply. The model is not trusted to return only JSON.
func parseModelReply(text string) Analysis {
	span, ok := extractJSONObject(text)
	if !ok {
		return analysisError(text)
	}
	var w wireAnalysis
	if err := json.Unmarshal([]byte(span), &w); err != nil {
		return analysisError(text)
	}
	a := Analysis{
		CrashType:    CrashType(w.CrashType),
		Cause:        w.Cause,
		Description:  w.Description,
		Solutions:    w.Solutions,
		Severity:     Severity(w.Severity),
		AutoReported: w.AutoReported,
	}
	if w.ResourceName != nil {
		a.ResourceName = *w.ResourceName
	}
	return a
}

// analysisError is the fixed degradation for a well-formed HTTP reply whose
// body could not be parsed. The raw text is kept for diagnostics.
func analysisError(raw string) Analysis {
	return Analysis{
		CrashType:   CrashUnknown,
		Cause:       "Analysis Error",
		Description: "CrashBot encountered an issue analyzing your crash log. The log may be in an unexpected format.",
		Solutions: []string{
			"Try uploading a different crash log file",
			"Make sure the file is a valid FiveM crash log",
			"Contact server staff if the issue persists",
		},
		Severity:    SeverityLow,
		RawResponse: raw,
	}
}
