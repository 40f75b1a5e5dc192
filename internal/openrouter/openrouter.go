// Package openrouter assigns catalog categories to newly created events with an LLM.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/metrics"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/models/dto"
	"eventsCatalog/internal/normalizer"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
	openrouter "github.com/revrost/go-openrouter"
	"github.com/revrost/go-openrouter/jsonschema"
)

const (
	// retryCount is how many times a rate-limited or dropped request is repeated.
	retryCount int = 10
	// defaultRetryDuration is the pause between repeats.
	defaultRetryDuration time.Duration = 5 * time.Second
)

const systemPrompt = `You classify public events for a city events catalog.
Answer only with JSON matching the schema. Pick one to three categories, strictly from this list: %s.
Use "General" only when nothing else fits.`

// AllowedCategories is the catalog vocabulary the model may choose from.
var AllowedCategories = []string{
	"Music", "Arts", "Sport", "Family", "Community", "Technology", "Festival", "Food", "Business", "General",
}

var ErrShuttingDown = errors.New("service is shutting down")
var ErrBufferFull = errors.New("job buffer is full")

// Repository is the slice of the catalog the enricher needs.
type Repository interface {
	FindByKey(ctx context.Context, url string) (domain.CatalogEvent, error)
	UpdateFields(ctx context.Context, url string, patch domain.EventPatch) error
}

// completer is satisfied by *openrouter.Client.
type completer interface {
	CreateChatCompletion(ctx context.Context, request openrouter.ChatCompletionRequest) (openrouter.ChatCompletionResponse, error)
}

// Job is one event waiting for categories.
type Job struct {
	requestID uuid.UUID
	key       string
	Done      chan struct{}
}

// Categorizer runs a pool of workers that enrich events off the ingestion path.
type Categorizer struct {
	logger        *slog.Logger
	cfg           config.AIConfig
	client        completer
	repository    Repository
	metrics       *metrics.Metrics
	retryDuration time.Duration

	mu              sync.RWMutex
	closed          bool
	jobs            chan Job
	shutdownChannel chan struct{}
	wg              *sync.WaitGroup
}

func New(
	logger *slog.Logger,
	cfg config.AIConfig,
	repository Repository,
	m *metrics.Metrics,
) *Categorizer {
	op := "Categorizer.New()"
	log := logger.With(slog.String("op", op))

	log.Info("creating openrouter client", slog.String("model", cfg.ModelName))

	return newWithCompleter(logger, cfg, openrouter.NewClient(cfg.AIApiToken), repository, m)
}

func newWithCompleter(logger *slog.Logger, cfg config.AIConfig, client completer, repository Repository, m *metrics.Metrics) *Categorizer {
	if cfg.JobBufferSize < 1 {
		cfg.JobBufferSize = 1
	}
	if cfg.WorkersCount < 1 {
		cfg.WorkersCount = 1
	}
	return &Categorizer{
		logger:          logger,
		cfg:             cfg,
		client:          client,
		repository:      repository,
		metrics:         m,
		retryDuration:   defaultRetryDuration,
		jobs:            make(chan Job, cfg.JobBufferSize),
		shutdownChannel: make(chan struct{}),
		wg:              &sync.WaitGroup{},
	}
}

// Start launches WorkersCount workers and blocks until they all return.
func (s *Categorizer) Start() {
	op := "Categorizer.Start()"
	log := s.logger.With(slog.String("op", op))

	for i := 0; i < s.cfg.WorkersCount; i++ {
		s.wg.Add(1)
		go s.handleJob(i)
	}
	log.Info("categorizer started", slog.Int("workers", s.cfg.WorkersCount))

	s.wg.Wait()
}

// AddJob queues key for enrichment without blocking. Done closes when the job is finished.
func (s *Categorizer) AddJob(requestID uuid.UUID, key string) (chan struct{}, error) {
	newJob := Job{
		requestID: requestID,
		key:       key,
		Done:      make(chan struct{}),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrShuttingDown
	}
	select {
	case s.jobs <- newJob:
		return newJob.Done, nil
	default:
		return nil, ErrBufferFull
	}
}

func (s *Categorizer) handleJob(id int) {
	defer s.wg.Done()
	op := "Categorizer.handleJob()"
	log := s.logger.With(
		slog.String("op", op),
		slog.Int("workerId", id),
	)

	log.Debug("start categorizer job handler")

	for {
		select {
		case <-s.shutdownChannel:
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.process(log, job)
		}
	}
}

func (s *Categorizer) process(logger *slog.Logger, job Job) {
	defer close(job.Done)

	joblog := logger.With(
		slog.String("requestID", job.requestID.String()),
		slog.String("key", job.key),
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetTimeout())
	defer cancel()

	event, err := s.repository.FindByKey(ctx, job.key)
	if err != nil {
		joblog.Error("failed to load event", sl.Err(err))
		s.metrics.CategorizerJob("failed")
		return
	}
	if event.IsCurated() {
		joblog.Debug("event curated meanwhile, skipping")
		s.metrics.CategorizerJob("skipped")
		return
	}

	categories, err := s.Categorize(ctx, joblog, job.requestID, event)
	if err != nil {
		joblog.Error("failed to categorize event", sl.Err(err))
		s.metrics.CategorizerJob("failed")
		return
	}
	if len(categories) == 0 {
		joblog.Warn("model returned no usable category")
		s.metrics.CategorizerJob("skipped")
		return
	}

	merged := normalizer.Categories(append(append([]string{}, event.Categories...), categories...))
	err = s.repository.UpdateFields(ctx, job.key, domain.EventPatch{
		Categories:       merged,
		ExpectStatus:     []domain.EventStatus{domain.EventStatusNew, domain.EventStatusUpdated},
		ExpectUnarchived: true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStatusChanged) {
			joblog.Info("event curated during enrichment, categories dropped")
			s.metrics.CategorizerJob("skipped")
			return
		}
		joblog.Error("failed to store categories", sl.Err(err))
		s.metrics.CategorizerJob("failed")
		return
	}

	s.metrics.CategorizerJob("ok")
	joblog.Info("categories stored", slog.Any("categories", merged))
}

// Categorize asks the model for categories and keeps only the allowed ones.
func (s *Categorizer) Categorize(ctx context.Context, logger *slog.Logger, requestID uuid.UUID, event domain.CatalogEvent) ([]string, error) {
	op := "Categorizer.Categorize()"
	log := logger.With(
		slog.String("op", op),
		slog.String("requestID", requestID.String()),
	)

	var responseSchema dto.CategoryResponseSchema
	schema, err := jsonschema.GenerateSchemaForType(responseSchema)
	if err != nil {
		return nil, fmt.Errorf("%s: GenerateSchemaForType: %w", op, err)
	}

	request := openrouter.ChatCompletionRequest{
		Model: s.cfg.ModelName,
		Messages: []openrouter.ChatCompletionMessage{
			openrouter.SystemMessage(fmt.Sprintf(systemPrompt, strings.Join(AllowedCategories, ", "))),
			openrouter.UserMessage(eventMessage(event)),
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		ResponseFormat: &openrouter.ChatCompletionResponseFormat{
			Type: "json_schema",
			JSONSchema: &openrouter.ChatCompletionResponseFormatJSONSchema{
				Name:   "categoryResponseSchema",
				Strict: true,
				Schema: schema,
			},
		},
	}

	var resp openrouter.ChatCompletionResponse
	for retry := range retryCount {
		select {
		case <-s.shutdownChannel:
			return nil, fmt.Errorf("%s: %w", op, ErrShuttingDown)
		default:
		}

		resp, err = s.client.CreateChatCompletion(ctx, request)
		if err == nil || !transient(err) {
			break
		}

		log.Warn("AI completion error, retrying", sl.Err(err), slog.Int("retry", retry))
		select {
		case <-time.After(s.retryDuration):
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-s.shutdownChannel:
			return nil, fmt.Errorf("%s: %w", op, ErrShuttingDown)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: AI completion failed: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty AI response", op)
	}

	cleaned := cleanJSONResponse(resp.Choices[0].Message.Content.Text)
	if err := json.Unmarshal([]byte(cleaned), &responseSchema); err != nil {
		log.Error("error unmarshal response", sl.Err(err), slog.String("response", cleaned))
		return nil, fmt.Errorf("%s: unmarshal: %w", op, err)
	}

	log.Debug("AI categories", slog.Any("raw", []string(responseSchema.Categories)))
	return responseSchema.Allowed(AllowedCategories), nil
}

func eventMessage(e domain.CatalogEvent) string {
	return fmt.Sprintf(`Classify this event:
Title: %s
Summary: %s
Description: %s
Venue: %s, %s
Starts: %s
Source categories: %s`,
		e.Title,
		e.ShortSummary,
		normalizer.Truncate(e.Description, 1000),
		e.Venue.Name,
		e.Venue.Address,
		e.Start.Format(time.RFC3339),
		strings.Join(e.Categories, ", "),
	)
}

// transient reports errors worth another attempt: HTTP 429 or a dropped connection.
// The client only exposes them through the error text.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || errors.Is(err, io.EOF) || strings.Contains(msg, "EOF")
}

// cleanJSONResponse strips markdown fences and trailing prose around the first JSON object.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	for _, fence := range []string{"```json", "```"} {
		if rest, ok := strings.CutPrefix(response, fence); ok {
			response = strings.TrimSpace(rest)
			break
		}
	}

	start := strings.IndexByte(response, '{')
	if start == -1 {
		return response
	}

	var obj json.RawMessage
	if err := json.NewDecoder(strings.NewReader(response[start:])).Decode(&obj); err != nil {
		return response
	}
	return string(obj)
}

// Shutdown stops accepting jobs and lets workers drain out.
func (s *Categorizer) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit AI client: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.shutdownChannel)
	close(s.jobs)
	return nil
}
