// Package opentdb fetches questions from the Open Trivia Database.
package opentdb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

const (
	DefaultBaseURL = "https://opentdb.com/api.php"
	defaultAmount  = 10
	maxAmount      = 50
)

// RawQuestion mirrors the OpenTriviaDB question payload.
type RawQuestion struct {
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Category         string   `json:"category"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []RawQuestion `json:"results"`
}

// Client implements engine.QuestionSource on top of the public API.
type Client struct {
	http    *http.Client
	baseURL string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewClient uses httpClient, or a client with a 10s timeout when nil.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Client) FetchQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	raw, err := c.fetchRaw(ctx, count)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, 0, len(raw))
	for _, r := range raw {
		if q, ok := c.convert(r); ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (c *Client) fetchRaw(ctx context.Context, amount int) ([]RawQuestion, error) {
	if amount <= 0 {
		amount = defaultAmount
	}
	if amount > maxAmount {
		amount = maxAmount
	}

	q := url.Values{}
	q.Set("amount", strconv.Itoa(amount))
	q.Set("type", "multiple")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opentdb returned status %d", resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode opentdb response: %w", err)
	}
	if payload.ResponseCode != 0 {
		return nil, fmt.Errorf("opentdb response_code=%d", payload.ResponseCode)
	}
	return payload.Results, nil
}

// convert keeps four-option questions, decodes HTML entities and places the
// correct answer at a random position.
func (c *Client) convert(r RawQuestion) (domain.Question, bool) {
	if len(r.IncorrectAnswers) != domain.OptionCount-1 {
		return domain.Question{}, false
	}
	text := html.UnescapeString(r.Question)
	options := make([]string, 0, domain.OptionCount)
	for _, a := range r.IncorrectAnswers {
		options = append(options, html.UnescapeString(a))
	}

	c.mu.Lock()
	pos := c.rnd.Intn(domain.OptionCount)
	c.mu.Unlock()
	options = append(options, "")
	copy(options[pos+1:], options[pos:])
	options[pos] = html.UnescapeString(r.CorrectAnswer)

	sum := sha1.Sum([]byte(r.Category + "\x00" + text))
	return domain.Question{
		ID:           "otdb-" + hex.EncodeToString(sum[:8]),
		Category:     html.UnescapeString(r.Category),
		Difficulty:   difficulty(r.Difficulty),
		Text:         text,
		Options:      options,
		CorrectIndex: pos,
	}, true
}

func difficulty(level string) int {
	switch level {
	case "easy":
		return 1
	case "medium":
		return 3
	case "hard":
		return 5
	}
	return 1
}
