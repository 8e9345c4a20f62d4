package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/engine"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/sqlite"
	"trivia-service/internal/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

const profileKey = "device/profile"

// NewPlayCmd runs a quiz in the terminal. Device stats and the chosen theme
// persist in a local SQLite file.
func NewPlayCmd(configPath *string) *cobra.Command {
	var opts playOptions
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runPlay(ctx, cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "player id (anonymous when empty)")
	cmd.Flags().StringVar(&opts.Theme, "theme", "", "color theme to remember: light or dark")
	cmd.Flags().BoolVar(&opts.ResetProfile, "reset-profile", false, "forget this device's theme and stats before playing")
	return cmd
}

type playOptions struct {
	UserID       string
	Theme        string
	ResetProfile bool
}

type blobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// deviceProfile is what this device remembers between games.
type deviceProfile struct {
	Theme         string     `json:"theme"`
	GamesPlayed   int        `json:"gamesPlayed"`
	TotalPoints   int        `json:"totalPoints"`
	BestScore     int        `json:"bestScore"`
	BestStreak    int        `json:"bestStreak"`
	TotalCorrect  int        `json:"totalCorrect"`
	TotalAnswered int        `json:"totalAnswered"`
	LastPlayedAt  *time.Time `json:"lastPlayedAt,omitempty"`
}

func loadProfile(ctx context.Context, store blobStore) (deviceProfile, error) {
	p := deviceProfile{Theme: "dark"}
	raw, ok, err := store.Get(ctx, profileKey)
	if err != nil || !ok {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return deviceProfile{Theme: "dark"}, fmt.Errorf("decode device profile: %w", err)
	}
	return p, nil
}

// resetProfile forgets the stored profile and returns the default one.
func resetProfile(ctx context.Context, store blobStore) (deviceProfile, error) {
	if err := store.Delete(ctx, profileKey); err != nil {
		return deviceProfile{}, fmt.Errorf("reset device profile: %w", err)
	}
	return loadProfile(ctx, store)
}

func saveProfile(ctx context.Context, store blobStore, p deviceProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return store.Put(ctx, profileKey, raw)
}

func (p *deviceProfile) record(s domain.QuizSession) {
	p.GamesPlayed++
	p.TotalPoints += s.Score
	p.TotalCorrect += s.CorrectCount
	p.TotalAnswered += len(s.Attempts)
	if s.Score > p.BestScore {
		p.BestScore = s.Score
	}
	if s.BestStreak > p.BestStreak {
		p.BestStreak = s.BestStreak
	}
	if s.EndedAt != nil {
		at := *s.EndedAt
		p.LastPlayedAt = &at
	}
}

func runPlay(ctx context.Context, cfg config.Config, opts playOptions, in io.Reader, out io.Writer) error {
	// Only errors reach the log so the quiz output stays readable.
	log := logging.New(logging.Options{Level: "error", Format: cfg.Log.Format, File: cfg.Log.File})
	defer func() { _ = log.Sync() }()

	var store blobStore = memory.NewMirror()
	if cfg.Local.SQLitePath != "" {
		mirror, err := sqlite.Open(cfg.Local.SQLitePath)
		if err != nil {
			return err
		}
		defer mirror.Close()
		store = mirror
	}
	var profile deviceProfile
	var err error
	if opts.ResetProfile {
		if profile, err = resetProfile(ctx, store); err != nil {
			return err
		}
	} else if profile, err = loadProfile(ctx, store); err != nil {
		fmt.Fprintf(out, "Starting with a fresh profile (%v)\n", err)
	}
	switch opts.Theme {
	case "":
	case "light", "dark":
		profile.Theme = opts.Theme
	default:
		return fmt.Errorf("unknown theme %q", opts.Theme)
	}

	var pool *pgxpool.Pool
	if cfg.Quiz.Source == "postgres" && cfg.Postgres.URL != "" {
		if pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL); err != nil {
			return err
		}
		defer pool.Close()
	}
	source, err := questionSource(cfg, pool, nil)
	if err != nil {
		return err
	}

	quiz := quizOptions(cfg, log)
	p := newPlayer(out, themeFor(profile.Theme), readLines(in))
	e := engine.New(engine.Options{
		SessionID:     uuid.NewString(),
		UserID:        opts.UserID,
		Source:        source,
		Count:         quiz.QuestionCount,
		QuestionTime:  quiz.QuestionTime,
		FeedbackPause: quiz.FeedbackPause,
		OnEvent:       p.onEvent,
		Logger:        log,
	})

	session, completed, err := p.run(ctx, e)
	if completed {
		profile.record(session)
		level := domain.LevelFor(profile.TotalPoints)
		fmt.Fprintf(out, "Level %d %s, %d points on this device. Best score %d, best streak %d.\n",
			level.Number, level.Title, profile.TotalPoints, profile.BestScore, profile.BestStreak)
	}
	if saveErr := saveProfile(context.WithoutCancel(ctx), store, profile); saveErr != nil {
		fmt.Fprintf(out, "Could not save device profile: %v\n", saveErr)
	}
	return err
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

type palette struct {
	good, bad, dim, reset string
}

func themeFor(name string) palette {
	if name == "light" {
		return palette{good: "\x1b[32m", bad: "\x1b[31m", dim: "\x1b[90m", reset: "\x1b[0m"}
	}
	return palette{good: "\x1b[92m", bad: "\x1b[91m", dim: "\x1b[37m", reset: "\x1b[0m"}
}

// player renders engine events and turns typed lines into answers. Lines are
// read only while a question or a retry prompt is open.
type player struct {
	out    io.Writer
	colors palette
	events chan engine.Event
	lines  <-chan string
}

func newPlayer(out io.Writer, colors palette, lines <-chan string) *player {
	return &player{out: out, colors: colors, events: make(chan engine.Event, 16), lines: lines}
}

func (p *player) onEvent(ev engine.Event) {
	p.events <- ev
}

func (p *player) run(ctx context.Context, e *engine.Engine) (domain.QuizSession, bool, error) {
	defer e.Close()

	fmt.Fprintln(p.out, "Loading questions...")
	// Failures arrive as error events.
	_ = e.Load(ctx)

	current := -1
	retrying := false
	var input <-chan string
	for {
		select {
		case <-ctx.Done():
			return e.Snapshot(), false, ctx.Err()

		case ev := <-p.events:
			switch ev.Type {
			case engine.EventQuestion:
				current = ev.Index
				retrying = false
				p.renderQuestion(ev)
				input = p.lines
			case engine.EventFeedback:
				input = nil
				p.renderFeedback(ev.Feedback)
			case engine.EventCompleted:
				p.renderSummary(*ev.Session)
				return *ev.Session, true, nil
			case engine.EventError:
				retrying = true
				fmt.Fprintf(p.out, "%s%v%s\nType r to retry or q to quit.\n", p.colors.bad, ev.Err, p.colors.reset)
				input = p.lines
			}

		case line, ok := <-input:
			if !ok || line == "q" {
				return e.Snapshot(), false, nil
			}
			if retrying {
				if line == "r" {
					input = nil
					fmt.Fprintln(p.out, "Loading questions...")
					_ = e.Load(ctx)
				}
				continue
			}
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > domain.OptionCount {
				fmt.Fprintf(p.out, "Enter a number from 1 to %d.\n", domain.OptionCount)
				continue
			}
			if err := e.Answer(current, n-1); err != nil {
				fmt.Fprintf(p.out, "%s%v%s\n", p.colors.dim, err, p.colors.reset)
			}
		}
	}
}

func (p *player) renderQuestion(ev engine.Event) {
	q := ev.Question
	fmt.Fprintf(p.out, "\n%sQuestion %d/%d . %s . difficulty %d%s\n", p.colors.dim, ev.Index+1, ev.Total, q.Category, q.Difficulty, p.colors.reset)
	fmt.Fprintln(p.out, q.Text)
	for i, opt := range q.Options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}
	if ev.Deadline != nil {
		fmt.Fprintf(p.out, "%sAnswer before %s%s\n", p.colors.dim, ev.Deadline.Format("15:04:05"), p.colors.reset)
	}
}

func (p *player) renderFeedback(fb *engine.Feedback) {
	switch {
	case fb.TimedOut:
		fmt.Fprintf(p.out, "%sTime's up!%s ", p.colors.bad, p.colors.reset)
	case fb.Attempt.IsCorrect:
		fmt.Fprintf(p.out, "%sCorrect! +%d%s ", p.colors.good, fb.Awarded, p.colors.reset)
	default:
		fmt.Fprintf(p.out, "%sWrong.%s ", p.colors.bad, p.colors.reset)
	}
	fmt.Fprintf(p.out, "The answer was option %d. Score %d, streak %d.\n", fb.CorrectIndex+1, fb.Score, fb.CurrentStreak)
	if fb.Explanation != "" {
		fmt.Fprintln(p.out, fb.Explanation)
	}
	if fb.Remark != "" {
		fmt.Fprintf(p.out, "%s%s%s\n", p.colors.dim, fb.Remark, p.colors.reset)
	}
	if len(fb.Distribution) > 0 {
		parts := make([]string, len(fb.Distribution))
		for i, pct := range fb.Distribution {
			parts[i] = fmt.Sprintf("%d) %d%%", i+1, pct)
		}
		fmt.Fprintf(p.out, "%sOther players: %s%s\n", p.colors.dim, strings.Join(parts, "  "), p.colors.reset)
	}
}

func (p *player) renderSummary(s domain.QuizSession) {
	fmt.Fprintf(p.out, "\nQuiz complete: %d/%d correct, %d points, best streak %d, average %dms per answer.\n",
		s.CorrectCount, s.TotalQuestions, s.Score, s.BestStreak, s.AverageResponseMs)
}
