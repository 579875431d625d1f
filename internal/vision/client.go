package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
)

// ErrUnavailable means the vision service could not be reached or answered
// with a server error. Callers fall back to other extraction strategies.
var ErrUnavailable = errors.New("vision analysis service unavailable")

// AnalyzeRequest asks the vision model to read answers off a set of pages
type AnalyzeRequest struct {
	Pages     []models.PageImage
	Questions []models.Question
	Title     string
	Subject   string
	Topic     string

	// FocusOrdinals restricts the call to re-verifying specific questions
	FocusOrdinals []int
	// FocusEssay asks only for development-question text
	FocusEssay bool
}

// PageAnalysis is the normalized outcome of one analyze call
type PageAnalysis struct {
	Answers        []models.ExtractedAnswer
	StudentName    string
	Registration   string
	QuestionsFound int
	Confidence     float64
}

// EssayRequest asks for the handwritten text of one development question
type EssayRequest struct {
	Page    models.PageImage
	Ordinal int
	Prompt  string
}

// EssayResult is the outcome of an essay text extraction call
type EssayResult struct {
	Success       bool    `json:"success"`
	Ordinal       int     `json:"questionNum"`
	ExtractedText string  `json:"extractedText"`
	Confidence    float64 `json:"confidence"`
}

// Client is the vision-analysis service boundary
type Client interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*PageAnalysis, error)
	IdentifyPages(ctx context.Context, pages []models.PageImage) ([]models.PageIdentity, error)
	ExtractEssayText(ctx context.Context, req EssayRequest) (*EssayResult, error)
}

// HTTPClient implements Client against the vision service's JSON API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     utils.Logger
}

// NewHTTPClient creates a vision client. The timeout covers one full model
// round trip; vision calls are the slow path of the whole pipeline.
func NewHTTPClient(baseURL, apiKey, model string, logger utils.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

type analyzePayload struct {
	Model         string            `json:"model"`
	Images        []string          `json:"images"`
	Questions     []models.Question `json:"questions"`
	Title         string            `json:"title,omitempty"`
	Subject       string            `json:"subject,omitempty"`
	Topic         string            `json:"topic,omitempty"`
	FocusOrdinals []int             `json:"focusOrdinals,omitempty"`
	FocusEssay    bool              `json:"focusEssay,omitempty"`
}

type identifyPayload struct {
	Model  string   `json:"model"`
	Images []string `json:"images"`
}

type extractPayload struct {
	Model   string `json:"model"`
	Image   string `json:"image"`
	Ordinal int    `json:"questionNum"`
	Prompt  string `json:"prompt,omitempty"`
}

// contentResponse is the service's generic wrapper around raw model output
type contentResponse struct {
	Content string `json:"content"`
}

// Analyze sends page rasters plus the question list and normalizes whatever
// the model returns. A response that cannot be parsed yields an empty
// analysis, not an error: unreadable model output means "nothing detected".
func (c *HTTPClient) Analyze(ctx context.Context, req AnalyzeRequest) (*PageAnalysis, error) {
	payload := analyzePayload{
		Model:         c.model,
		Images:        encodePages(req.Pages),
		Questions:     req.Questions,
		Title:         req.Title,
		Subject:       req.Subject,
		Topic:         req.Topic,
		FocusOrdinals: req.FocusOrdinals,
		FocusEssay:    req.FocusEssay,
	}

	var resp contentResponse
	if err := c.post(ctx, "/v1/analyze", payload, &resp); err != nil {
		return nil, err
	}

	source := models.SourceVision
	if len(req.FocusOrdinals) > 0 {
		source = models.SourceVisionRecheck
	}

	env, err := decodeEnvelope(resp.Content)
	if err != nil {
		c.logger.Warn("vision response not parseable, treating as no answers", "error", err)
		return &PageAnalysis{}, nil
	}

	return &PageAnalysis{
		Answers:        normalizeAnswers(env, source),
		StudentName:    env.StudentName,
		Registration:   env.registration(),
		QuestionsFound: env.QuestionsFound,
		Confidence:     env.Confidence,
	}, nil
}

// IdentifyPages runs the identify-only pass: per page, who the sheet belongs
// to and whether it restarts at question 1. No answer analysis happens here.
func (c *HTTPClient) IdentifyPages(ctx context.Context, pages []models.PageImage) ([]models.PageIdentity, error) {
	payload := identifyPayload{
		Model:  c.model,
		Images: encodePages(pages),
	}

	var resp contentResponse
	if err := c.post(ctx, "/v1/identify", payload, &resp); err != nil {
		return nil, err
	}

	raw, err := extractJSON(resp.Content)
	if err != nil {
		c.logger.Warn("identify response not parseable", "error", err)
		return nil, nil
	}

	var parsed struct {
		Pages []loosePageIdentity `json:"pages"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Warn("identify response not parseable", "error", err)
		return nil, nil
	}

	identities := make([]models.PageIdentity, 0, len(parsed.Pages))
	for i, lp := range parsed.Pages {
		identities = append(identities, models.PageIdentity{
			PageIndex:      lp.pageIndex(i),
			Name:           lp.name(),
			Registration:   lp.registrationNumber(),
			StartsNewSheet: lp.FirstQuestion != nil && *lp.FirstQuestion == 1,
		})
	}
	return identities, nil
}

// ExtractEssayText asks for the handwritten answer text of one development question
func (c *HTTPClient) ExtractEssayText(ctx context.Context, req EssayRequest) (*EssayResult, error) {
	payload := extractPayload{
		Model:   c.model,
		Image:   base64.StdEncoding.EncodeToString(req.Page.JPEG),
		Ordinal: req.Ordinal,
		Prompt:  req.Prompt,
	}

	var result EssayResult
	if err := c.post(ctx, "/v1/extract-text", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends one JSON request and decodes the response into out
func (c *HTTPClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vision service returned %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func encodePages(pages []models.PageImage) []string {
	images := make([]string, 0, len(pages))
	for _, page := range pages {
		images = append(images, base64.StdEncoding.EncodeToString(page.JPEG))
	}
	return images
}
