// Package chat runs the interactive read-eval-print loop: it turns each
// input line into a chat completion request, keeps the transcript and
// reports per-request metrics.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"sglang-chat/internal/config"
	"sglang-chat/internal/history"
	"sglang-chat/internal/metrics"
	"sglang-chat/internal/sglang"
	"sglang-chat/internal/terminal"
	"sglang-chat/internal/tokens"
	"sglang-chat/internal/ui"
)

// Session commands
const (
	CmdReset = "/reset"
	CmdQuit  = "/quit"
	CmdHelp  = "/help"
)

// Commands is the static command list shown in the banner and by /help
var Commands = []ui.CommandHelp{
	{Name: CmdReset, Description: "Clear conversation history"},
	{Name: CmdQuit, Description: "Exit the chat"},
	{Name: CmdHelp, Description: "Show this help message"},
}

// Completer sends a chat request and blocks for the reply
type Completer interface {
	Chat(ctx context.Context, req sglang.ChatRequest) (*sglang.Completion, error)
}

// Session is one interactive chat. It is driven by a single goroutine.
type Session struct {
	cfg        *config.Config
	client     Completer
	transcript *history.Transcript
	display    *ui.Display
	input      *terminal.LineReader
	counter    tokens.Counter
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithCounter sets the fallback token counter
func WithCounter(c tokens.Counter) Option {
	return func(s *Session) {
		s.counter = c
	}
}

// WithClock replaces time.Now for latency measurement
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a session with an empty transcript
func NewSession(cfg *config.Config, client Completer, display *ui.Display, input *terminal.LineReader, opts ...Option) *Session {
	s := &Session{
		cfg:        cfg,
		client:     client,
		transcript: history.NewTranscript(),
		display:    display,
		input:      input,
		counter:    tokens.WordCounter{},
		logger:     zap.NewNop(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Transcript exposes the conversation so far
func (s *Session) Transcript() *history.Transcript {
	return s.transcript
}

// inputLine is one result from the terminal reader
type inputLine struct {
	text string
	err  error
}

// Run prints the banner and loops until /quit, end of input or ctx is done.
// Request failures are reported and never end the loop.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.display.PrintBanner(s.cfg.Address(), s.cfg.Model, Commands)

	s.logger.Info("chat session started",
		zap.String("session_id", s.transcript.ID()),
		zap.String("server", s.cfg.BaseURL()),
		zap.String("model", s.cfg.Model),
	)

	// Reads happen off this goroutine so cancellation is noticed while
	// waiting for input. All output stays on this goroutine.
	lines := make(chan inputLine)
	go s.readLines(ctx, lines)

	for {
		if ctx.Err() != nil {
			s.display.PrintGoodbye()
			return nil
		}

		s.display.PrintPrompt()

		var in inputLine
		select {
		case <-ctx.Done():
			s.display.PrintGoodbye()
			return nil
		case in = <-lines:
		}
		if ctx.Err() != nil {
			s.display.PrintGoodbye()
			return nil
		}

		var tooLong *terminal.LineTooLongError
		switch {
		case errors.As(in.err, &tooLong):
			s.report(in.err)
			continue
		case errors.Is(in.err, io.EOF):
			s.display.PrintGoodbye()
			return nil
		case in.err != nil:
			return fmt.Errorf("failed to read input: %w", in.err)
		}

		if quit := s.HandleLine(ctx, in.text); quit {
			s.display.PrintGoodbye()
			return nil
		}
	}
}

// readLines feeds lines to out until input ends or ctx is done
func (s *Session) readLines(ctx context.Context, out chan<- inputLine) {
	for {
		text, err := s.input.ReadLine()
		select {
		case out <- inputLine{text: text, err: err}:
		case <-ctx.Done():
			return
		}

		var tooLong *terminal.LineTooLongError
		if err != nil && !errors.As(err, &tooLong) {
			return
		}
	}
}

// HandleLine processes one line of input and reports whether the session
// should end. Every failure is printed before returning.
func (s *Session) HandleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, "/") {
		quit, err := s.runCommand(line)
		if err != nil {
			s.report(err)
		}
		return quit
	}

	if err := s.send(ctx, line); err != nil {
		if ctx.Err() != nil {
			// cancelled by the user, Run says goodbye next
			s.logger.Debug("chat request cancelled", zap.Error(err))
			return false
		}
		s.report(err)
	}
	return false
}

// runCommand matches commands case-insensitively
func (s *Session) runCommand(line string) (bool, error) {
	switch strings.ToLower(line) {
	case CmdQuit:
		return true, nil
	case CmdReset:
		s.transcript.Reset()
		s.logger.Debug("transcript reset", zap.String("session_id", s.transcript.ID()))
		s.display.PrintSuccess("Conversation history cleared")
		return false, nil
	case CmdHelp:
		s.display.PrintCommands(Commands)
		return false, nil
	default:
		return false, &UserInputError{Command: line}
	}
}

// send appends the user turn, posts the whole transcript and, only on
// success, appends the assistant turn.
func (s *Session) send(ctx context.Context, line string) error {
	s.transcript.Append(history.RoleUser, line)
	req := s.buildRequest()

	start := s.now()
	completion, err := s.client.Chat(ctx, req)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.logger.Warn("chat request failed",
			zap.String("session_id", s.transcript.ID()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}

	s.transcript.Append(history.RoleAssistant, completion.Content)
	m := metrics.Compute(elapsed, completion, s.counter)

	s.logger.Debug("chat request completed",
		zap.String("session_id", s.transcript.ID()),
		zap.Duration("elapsed", elapsed),
		zap.Int("tokens", m.TokenCount),
		zap.Bool("estimated", m.Estimated),
		zap.String("finish_reason", completion.FinishReason),
	)

	s.display.PrintAssistantReply(completion.Content)
	s.display.PrintMetrics(m)
	return nil
}

func (s *Session) buildRequest() sglang.ChatRequest {
	turns := s.transcript.Turns()
	messages := make([]sglang.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, sglang.Message{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	temperature := s.cfg.Temperature
	return sglang.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: &temperature,
	}
}

// report prints err with a hint matching its kind
func (s *Session) report(err error) {
	var (
		inputErr *UserInputError
		tooLong  *terminal.LineTooLongError
		connErr  *sglang.ConnectionError
		protoErr *sglang.ProtocolError
	)

	s.display.PrintError(err)

	switch {
	case errors.As(err, &inputErr):
		// the message already says how to get help
	case errors.As(err, &tooLong):
		s.display.PrintInfo("Nothing was sent. Split the text into smaller messages.")
	case errors.As(err, &connErr):
		if connErr.Timeout {
			s.display.PrintInfo(fmt.Sprintf("No reply within %s. Try a shorter prompt or raise --timeout.", s.cfg.Timeout))
		} else {
			s.display.PrintInfo(fmt.Sprintf("Is the server running at %s?", s.cfg.Address()))
		}
	case errors.As(err, &protoErr):
		s.display.PrintInfo("The server rejected the request or sent an unexpected reply.")
	}
}
