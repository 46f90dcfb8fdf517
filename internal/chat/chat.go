package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/analystchat/analystchat/internal/analyst"
	"github.com/analystchat/analystchat/internal/archive"
	"github.com/analystchat/analystchat/internal/auth"
	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/observability"
	"github.com/analystchat/analystchat/internal/render"
	"github.com/analystchat/analystchat/internal/session"
)

var (
	ErrQuestionRequired = errors.New("question is required")
	ErrMessageNotFound  = errors.New("message not found")
	ErrArchiveDisabled  = errors.New("transcript archive is not configured")
)

// TranscriptArchiver persists a copy of a session's log outside the session store.
type TranscriptArchiver interface {
	Archive(ctx context.Context, state *conversation.State) (archive.Result, error)
}

// Trigger is one user interaction. Fields are evaluated in order: reset,
// then question, then suggestion.
type Trigger struct {
	Reset         bool
	Question      string
	SuggestionKey string
}

type Debug struct {
	History  []conversation.Message `json:"history"`
	Request  analyst.Request        `json:"request"`
	Response json.RawMessage        `json:"response,omitempty"`
}

type Turn struct {
	SessionID string `json:"session_id"`
	Reset     bool   `json:"reset,omitempty"`
	// MessageIndex is the log index of the analyst reply, or -1 when the
	// trigger produced none.
	MessageIndex int               `json:"message_index"`
	User         *render.Message   `json:"user,omitempty"`
	Reply        *render.Message   `json:"reply,omitempty"`
	Warnings     []analyst.Warning `json:"warnings,omitempty"`
	Debug        *Debug            `json:"debug,omitempty"`
}

type Transcript struct {
	SessionID string           `json:"session_id"`
	Messages  []render.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Config struct {
	Model         analyst.SemanticModel
	HistoryWindow int
	Debug         bool
	Clock         func() time.Time
	// Archiver is optional; without it Archive returns ErrArchiveDisabled.
	Archiver TranscriptArchiver
}

type Service struct {
	analyst  analyst.Analyst
	store    session.Store
	renderer *render.Renderer
	cfg      Config
	logger   *slog.Logger
	locks    sessionLocks
}

func NewService(client analyst.Analyst, store session.Store, renderer *render.Renderer, cfg Config, logger *slog.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("analyst client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = conversation.DefaultWindowSize
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{analyst: client, store: store, renderer: renderer, cfg: cfg, logger: logger}, nil
}

func (s *Service) NewSession(ctx context.Context) (*conversation.State, error) {
	state, err := s.store.Create(ctx, auth.Owner(ctx))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.InfoContext(ctx, "session created", slog.String("session_id", state.ID))
	return state, nil
}

func (s *Service) Ask(ctx context.Context, sessionID, question string) (Turn, error) {
	if strings.TrimSpace(question) == "" {
		return Turn{SessionID: sessionID, MessageIndex: -1}, ErrQuestionRequired
	}
	return s.Handle(ctx, sessionID, Trigger{Question: question})
}

func (s *Service) SelectSuggestion(ctx context.Context, sessionID, key string) (Turn, error) {
	if strings.TrimSpace(key) == "" {
		return Turn{SessionID: sessionID, MessageIndex: -1}, fmt.Errorf("%w: empty key", conversation.ErrUnknownSuggestion)
	}
	return s.Handle(ctx, sessionID, Trigger{SuggestionKey: key})
}

func (s *Service) Reset(ctx context.Context, sessionID string) error {
	_, err := s.Handle(ctx, sessionID, Trigger{Reset: true})
	return err
}

// Handle applies one trigger to the session. Triggers on the same session are
// serialized; different sessions proceed concurrently.
func (s *Service) Handle(ctx context.Context, sessionID string, trigger Trigger) (Turn, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	turn := Turn{SessionID: sessionID, MessageIndex: -1}
	state, err := s.load(ctx, sessionID)
	if err != nil {
		return turn, err
	}

	if trigger.Reset {
		state.RequestReset()
	}
	if state.ResetRequested {
		state.Reset()
		state.Touch(s.cfg.Clock())
		s.renderer.Forget(sessionID)
		observability.IncrementSessionReset()
		if err := s.store.Save(ctx, state); err != nil {
			return turn, fmt.Errorf("save session: %w", err)
		}
		turn.Reset = true
		s.logger.InfoContext(ctx, "session reset", slog.String("session_id", sessionID))
	}

	if question := strings.TrimSpace(trigger.Question); question != "" {
		return s.processMessage(ctx, state, question, turn)
	}

	if key := strings.TrimSpace(trigger.SuggestionKey); key != "" {
		text, err := state.Suggestion(key)
		if err != nil {
			return turn, err
		}
		state.SetPendingSuggestion(text)
		observability.IncrementSuggestionSelected()
		pending, _ := state.TakePendingSuggestion()
		return s.processMessage(ctx, state, pending, turn)
	}

	return turn, nil
}

func (s *Service) processMessage(ctx context.Context, state *conversation.State, question string, turn Turn) (Turn, error) {
	prevLen := len(state.Messages)
	userIndex := state.AppendMessage(conversation.RoleUser, conversation.UserQuestion(question).Content)

	history := conversation.BuildHistory(state.Messages, question, s.cfg.HistoryWindow)
	request := analyst.BuildRequest(history, s.cfg.Model)

	start := time.Now()
	response, err := s.analyst.SendMessage(ctx, request)
	if err == nil && len(response.Message.Content) == 0 {
		err = &analyst.DecodeError{RawBody: string(response.Raw), Err: analyst.ErrEmptyReply}
	}
	observability.ObserveAnalystRequest(err, time.Since(start))
	logger := observability.SessionLogger(ctx, s.logger, state.ID)
	logger.DebugContext(ctx, "analyst exchange",
		slog.Int("history_len", len(history)),
		slog.Any("request", request),
		slog.String("response", string(response.Raw)),
	)
	if err != nil {
		state.Truncate(prevLen)
		state.Touch(s.cfg.Clock())
		if saveErr := s.store.Save(ctx, state); saveErr != nil {
			logger.ErrorContext(ctx, "save session after analyst failure", slog.String("error", saveErr.Error()))
		}
		logger.WarnContext(ctx, "analyst request failed", slog.String("error", err.Error()))
		return turn, err
	}

	replyIndex := state.AppendMessage(conversation.RoleAnalyst, response.Message.Content)
	state.Touch(s.cfg.Clock())
	if err := s.store.Save(ctx, state); err != nil {
		return turn, fmt.Errorf("save session: %w", err)
	}

	turn.MessageIndex = replyIndex
	turn.Warnings = response.Warnings
	turn.User = s.renderMessage(ctx, state, userIndex)
	turn.Reply = s.renderMessage(ctx, state, replyIndex)
	if s.cfg.Debug {
		turn.Debug = &Debug{History: history, Request: request, Response: response.Raw}
	}
	return turn, nil
}

func (s *Service) Transcript(ctx context.Context, sessionID string) (Transcript, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{
		SessionID: state.ID,
		Messages:  s.renderer.RenderTranscript(ctx, state.ID, state.Messages),
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
	}, nil
}

// RunSQL re-executes the SQL blocks of one analyst message.
func (s *Service) RunSQL(ctx context.Context, sessionID string, messageIndex int) ([]render.Element, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if messageIndex < 0 || messageIndex >= len(state.Messages) {
		return nil, fmt.Errorf("%w: index %d", ErrMessageNotFound, messageIndex)
	}
	message := state.Messages[messageIndex]
	if message.Role != conversation.RoleAnalyst {
		return nil, fmt.Errorf("%w: index %d is not an analyst message", ErrMessageNotFound, messageIndex)
	}
	return s.renderer.Rerun(ctx, sessionID, message.Content, messageIndex), nil
}

// Archive writes the current log of the session to the transcript archive.
// The session itself is left untouched.
func (s *Service) Archive(ctx context.Context, sessionID string) (archive.Result, error) {
	if s.cfg.Archiver == nil {
		return archive.Result{}, ErrArchiveDisabled
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	state, err := s.load(ctx, sessionID)
	if err != nil {
		return archive.Result{}, err
	}
	result, err := s.cfg.Archiver.Archive(ctx, state)
	if err != nil {
		return archive.Result{}, err
	}
	s.logger.InfoContext(ctx, "session archived",
		slog.String("session_id", sessionID),
		slog.String("object_key", result.ObjectKey),
		slog.Int64("records", result.RecordCount),
	)
	return result, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if _, err := s.load(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete session: %w", err)
	}
	s.renderer.Forget(sessionID)
	s.logger.InfoContext(ctx, "session deleted", slog.String("session_id", sessionID))
	return nil
}

// load fetches the session and hides sessions owned by another tenant.
func (s *Service) load(ctx context.Context, sessionID string) (*conversation.State, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if state.Owner != auth.Owner(ctx) {
		return nil, session.ErrNotFound
	}
	return state, nil
}

func (s *Service) renderMessage(ctx context.Context, state *conversation.State, index int) *render.Message {
	message := state.Messages[index]
	return &render.Message{
		Index:    index,
		Role:     message.Role,
		Elements: s.renderer.Render(ctx, state.ID, message.Content, index),
	}
}
