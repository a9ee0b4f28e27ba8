package chat_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sglang-chat/internal/chat"
	"sglang-chat/internal/config"
	"sglang-chat/internal/history"
	"sglang-chat/internal/sglang"
	"sglang-chat/internal/terminal"
	"sglang-chat/internal/ui"
)

// fakeClock only moves when a fake completer advances it
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// fakeCompleter replays scripted results and records every request
type fakeCompleter struct {
	clock    *fakeClock
	latency  time.Duration
	results  []result
	requests []sglang.ChatRequest
}

type result struct {
	completion *sglang.Completion
	err        error
}

func (f *fakeCompleter) Chat(_ context.Context, req sglang.ChatRequest) (*sglang.Completion, error) {
	f.requests = append(f.requests, req)
	f.clock.Advance(f.latency)

	if len(f.results) == 0 {
		content := "reply " + req.Messages[len(req.Messages)-1].Content
		return &sglang.Completion{Content: content}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.completion, r.err
}

func turnsOf(s *chat.Session) []history.Turn {
	return s.Transcript().Turns()
}

func roles(turns []history.Turn) []history.Role {
	out := make([]history.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

var _ = Describe("Session", func() {
	var (
		ctx       context.Context
		cfg       *config.Config
		out       *bytes.Buffer
		clock     *fakeClock
		completer *fakeCompleter
		session   *chat.Session
	)

	newSession := func(client chat.Completer, input string) *chat.Session {
		return chat.NewSession(
			cfg,
			client,
			ui.NewDisplay(out, ui.Options{}),
			terminal.NewLineReader(strings.NewReader(input)),
			chat.WithClock(clock.Now),
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewConfig()
		out = &bytes.Buffer{}
		clock = &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
		completer = &fakeCompleter{clock: clock, latency: time.Second}
		session = newSession(completer, "")
	})

	Describe("successful turns", func() {
		It("keeps 2N turns alternating user and assistant", func() {
			for i := 1; i <= 4; i++ {
				Expect(session.HandleLine(ctx, fmt.Sprintf("message %d", i))).To(BeFalse())
				Expect(session.Transcript().Len()).To(Equal(2 * i))
			}

			Expect(roles(turnsOf(session))).To(Equal([]history.Role{
				history.RoleUser, history.RoleAssistant,
				history.RoleUser, history.RoleAssistant,
				history.RoleUser, history.RoleAssistant,
				history.RoleUser, history.RoleAssistant,
			}))
		})

		It("sends every earlier turn in order", func() {
			session.HandleLine(ctx, "first")
			session.HandleLine(ctx, "second")

			Expect(completer.requests).To(HaveLen(2))
			Expect(completer.requests[0].Messages).To(Equal([]sglang.Message{
				{Role: "user", Content: "first"},
			}))
			Expect(completer.requests[1].Messages).To(Equal([]sglang.Message{
				{Role: "user", Content: "first"},
				{Role: "assistant", Content: "reply first"},
				{Role: "user", Content: "second"},
			}))
		})

		It("includes model and generation parameters", func() {
			cfg.Model = "mistralai/Mistral-7B-Instruct-v0.3"
			cfg.MaxTokens = 64
			cfg.Temperature = 0.1

			session.HandleLine(ctx, "hello")

			req := completer.requests[0]
			Expect(req.Model).To(Equal("mistralai/Mistral-7B-Instruct-v0.3"))
			Expect(req.MaxTokens).To(Equal(64))
			Expect(req.Temperature).NotTo(BeNil())
			Expect(*req.Temperature).To(BeNumerically("~", 0.1, 1e-9))
		})

		It("reports speed as tokens over elapsed time", func() {
			completer.latency = 2 * time.Second
			completer.results = []result{{completion: &sglang.Completion{
				Content: "long answer",
				Usage:   &sglang.Usage{PromptTokens: 20, CompletionTokens: 256, TotalTokens: 276},
			}}}

			session.HandleLine(ctx, "write a lot")

			Expect(out.String()).To(ContainSubstring("Time: 2.00s"))
			Expect(out.String()).To(ContainSubstring("Speed: 128.0 tokens/s"))
			Expect(out.String()).To(ContainSubstring("Tokens: 276 total"))
		})

		It("recomputes the speed for every turn", func() {
			completer.latency = 2 * time.Second
			completer.results = []result{
				{completion: &sglang.Completion{Content: "a", Usage: &sglang.Usage{CompletionTokens: 256, TotalTokens: 256}}},
				{completion: &sglang.Completion{Content: "b", Usage: &sglang.Usage{CompletionTokens: 100, TotalTokens: 100}}},
			}

			session.HandleLine(ctx, "one")
			session.HandleLine(ctx, "two")

			Expect(out.String()).To(ContainSubstring("Speed: 128.0 tokens/s"))
			Expect(out.String()).To(ContainSubstring("Speed: 50.0 tokens/s"))
		})

		It("counts tokens locally when usage is missing", func() {
			completer.results = []result{{completion: &sglang.Completion{Content: "one two three four"}}}

			session.HandleLine(ctx, "count")

			Expect(out.String()).To(ContainSubstring("Speed: 4.0 tokens/s"))
			Expect(out.String()).To(ContainSubstring("Tokens: 4 total (estimated)"))
		})
	})

	Describe("failed requests", func() {
		It("keeps only the user turn", func() {
			session.HandleLine(ctx, "ok")
			before := session.Transcript().Len()

			completer.results = []result{{err: &sglang.ConnectionError{URL: "http://localhost:30000", Err: errors.New("connection refused")}}}
			Expect(session.HandleLine(ctx, "lost")).To(BeFalse())

			Expect(session.Transcript().Len()).To(Equal(before + 1))
			last, ok := session.Transcript().Last()
			Expect(ok).To(BeTrue())
			Expect(last.Role).To(Equal(history.RoleUser))
			Expect(last.Content).To(Equal("lost"))
			Expect(out.String()).To(ContainSubstring("connection refused"))
			Expect(out.String()).To(ContainSubstring("Is the server running at localhost:30000?"))
		})

		It("resends the kept user turn with the next message", func() {
			completer.results = []result{{err: &sglang.ProtocolError{StatusCode: 503, Body: "busy"}}}
			session.HandleLine(ctx, "first try")
			session.HandleLine(ctx, "second try")

			Expect(completer.requests[1].Messages).To(Equal([]sglang.Message{
				{Role: "user", Content: "first try"},
				{Role: "user", Content: "second try"},
			}))
		})

		It("mentions the timeout when the request timed out", func() {
			completer.results = []result{{err: &sglang.ConnectionError{URL: "x", Timeout: true, Err: context.DeadlineExceeded}}}
			session.HandleLine(ctx, "slow")

			Expect(out.String()).To(ContainSubstring("timed out"))
			Expect(out.String()).To(ContainSubstring("No reply within 2m0s"))
		})
	})

	Describe("commands", func() {
		It("resets to an empty transcript, even twice", func() {
			session.HandleLine(ctx, "a")
			session.HandleLine(ctx, "b")
			Expect(session.Transcript().Len()).To(Equal(4))

			Expect(session.HandleLine(ctx, "/reset")).To(BeFalse())
			Expect(session.Transcript().Len()).To(BeZero())
			Expect(session.HandleLine(ctx, "/reset")).To(BeFalse())
			Expect(session.Transcript().Len()).To(BeZero())
			Expect(out.String()).To(ContainSubstring("Conversation history cleared"))
			Expect(completer.requests).To(HaveLen(2))
		})

		It("quits without touching the transcript", func() {
			session.HandleLine(ctx, "a")
			before := turnsOf(session)

			Expect(session.HandleLine(ctx, "/quit")).To(BeTrue())
			Expect(turnsOf(session)).To(Equal(before))
			Expect(completer.requests).To(HaveLen(1))
		})

		It("matches commands regardless of case", func() {
			Expect(session.HandleLine(ctx, "/QUIT")).To(BeTrue())
			Expect(session.HandleLine(ctx, "  /Help  ")).To(BeFalse())
			Expect(out.String()).To(ContainSubstring("/reset"))
		})

		It("prints the command list for /help", func() {
			session.HandleLine(ctx, "/help")

			for _, c := range chat.Commands {
				Expect(out.String()).To(ContainSubstring(c.Name))
				Expect(out.String()).To(ContainSubstring(c.Description))
			}
			Expect(completer.requests).To(BeEmpty())
		})

		It("reports unknown commands without sending", func() {
			Expect(session.HandleLine(ctx, "/frobnicate")).To(BeFalse())

			Expect(out.String()).To(ContainSubstring("unknown command: /frobnicate"))
			Expect(completer.requests).To(BeEmpty())
			Expect(session.Transcript().Len()).To(BeZero())
		})

		It("ignores blank lines", func() {
			Expect(session.HandleLine(ctx, "")).To(BeFalse())
			Expect(session.HandleLine(ctx, "   \t ")).To(BeFalse())
			Expect(completer.requests).To(BeEmpty())
			Expect(session.Transcript().Len()).To(BeZero())
		})
	})

	Describe("Run", func() {
		It("prints the banner and stops at /quit", func() {
			session = newSession(completer, "hello\n\n/quit\nnever sent\n")

			Expect(session.Run(ctx)).To(Succeed())

			Expect(out.String()).To(ContainSubstring("Server: localhost:30000"))
			Expect(out.String()).To(ContainSubstring("Model:  " + config.DefaultModel))
			Expect(out.String()).To(ContainSubstring("Goodbye!"))
			Expect(completer.requests).To(HaveLen(1))
			Expect(session.Transcript().Len()).To(Equal(2))
		})

		It("ends cleanly at end of input", func() {
			session = newSession(completer, "hello\n")

			Expect(session.Run(ctx)).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Goodbye!"))
		})

		It("stops when the context is cancelled", func() {
			session = newSession(completer, "hello\n")
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			Expect(session.Run(cancelled)).To(Succeed())
			Expect(completer.requests).To(BeEmpty())
		})

		It("reports an oversized line and keeps reading", func() {
			huge := strings.Repeat("a", terminal.MaxLineSize+1)
			session = newSession(completer, huge+"\nhello\n/quit\n")

			Expect(session.Run(ctx)).To(Succeed())

			Expect(out.String()).To(ContainSubstring("exceeds"))
			Expect(out.String()).To(ContainSubstring("Goodbye!"))
			Expect(completer.requests).To(HaveLen(1))
			Expect(completer.requests[0].Messages).To(Equal([]sglang.Message{
				{Role: "user", Content: "hello"},
			}))
			Expect(session.Transcript().Len()).To(Equal(2))
		})

		It("says goodbye when cancelled while waiting for input", func() {
			pr, pw := io.Pipe()
			DeferCleanup(pw.Close)

			session = chat.NewSession(cfg, completer,
				ui.NewDisplay(out, ui.Options{}),
				terminal.NewLineReader(pr),
				chat.WithClock(clock.Now),
			)

			cancelled, cancel := context.WithCancel(ctx)
			timer := time.AfterFunc(50*time.Millisecond, cancel)
			DeferCleanup(timer.Stop)

			Expect(session.Run(cancelled)).To(Succeed())
			Expect(out.String()).To(HaveSuffix("Goodbye!\n\n"))
			Expect(completer.requests).To(BeEmpty())
		})

		It("keeps going after an unknown command and a failure", func() {
			completer.results = []result{{err: &sglang.ProtocolError{StatusCode: 500, Body: "oops"}}}
			session = newSession(completer, "/nope\nfirst\nsecond\n/quit\n")

			Expect(session.Run(ctx)).To(Succeed())
			Expect(completer.requests).To(HaveLen(2))
			Expect(session.Transcript().Len()).To(Equal(3))
		})
	})

	Describe("against an HTTP endpoint", func() {
		newHTTPSession := func(handler http.HandlerFunc) *chat.Session {
			srv := httptest.NewServer(handler)
			DeferCleanup(srv.Close)
			client := sglang.NewClient(srv.URL, 5*time.Second)
			return newSession(client, "")
		}

		It("keeps [user Hello] after an HTTP 500 and accepts the next input", func() {
			var calls atomic.Int32
			session = newHTTPSession(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
			})

			Expect(session.HandleLine(ctx, "Hello")).To(BeFalse())

			turns := turnsOf(session)
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Role).To(Equal(history.RoleUser))
			Expect(turns[0].Content).To(Equal("Hello"))
			Expect(out.String()).To(ContainSubstring("500"))
			Expect(out.String()).To(ContainSubstring("Error"))

			Expect(session.HandleLine(ctx, "again")).To(BeFalse())
			Expect(session.Transcript().Len()).To(Equal(3))
		})

		It("stores the reply and reports the total tokens", func() {
			var path atomic.Value
			session = newHTTPSession(func(w http.ResponseWriter, r *http.Request) {
				path.Store(r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hi there"}}], "usage":{"total_tokens":10}}`))
			})

			session.HandleLine(ctx, "Hi")

			Expect(path.Load()).To(Equal(sglang.ChatCompletionsPath))
			turns := turnsOf(session)
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(history.RoleUser))
			Expect(turns[0].Content).To(Equal("Hi"))
			Expect(turns[1].Role).To(Equal(history.RoleAssistant))
			Expect(turns[1].Content).To(Equal("Hi there"))
			Expect(out.String()).To(ContainSubstring("Assistant: Hi there"))
			Expect(out.String()).To(ContainSubstring("Tokens: 10 total\n"))
		})

		It("reports a malformed body as an error", func() {
			session = newHTTPSession(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":`))
			})

			session.HandleLine(ctx, "Hi")

			Expect(session.Transcript().Len()).To(Equal(1))
			Expect(out.String()).To(ContainSubstring("malformed response"))
		})
	})
})
