// Package stubserver provides a small OpenAI-compatible endpoint that stands
// in for an SGLang server when no GPUs are around. It answers health, model
// listing and non-streaming chat completions by echoing the last user turn.
package stubserver

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sglang-chat/internal/history"
	"sglang-chat/internal/sglang"
	"sglang-chat/internal/tokens"
)

// Config is the stub server configuration.
type Config struct {
	// Address to listen on (e.g., ":30000")
	ListenAddr string

	// Model id reported by /v1/models and in completions
	Model string

	// Reply, when set, is returned verbatim instead of echoing the prompt
	Reply string

	// Latency is slept before each completion is returned
	Latency time.Duration

	// OmitUsage drops the usage block from completions
	OmitUsage bool

	// FailStatus, when non-zero, makes every completion fail with this status
	FailStatus int
}

// errorResponse mirrors the OpenAI error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Server is the stub endpoint.
type Server struct {
	config  Config
	logger  *zap.Logger
	counter tokens.Counter
	app     *fiber.App

	mu       sync.Mutex
	requests []sglang.ChatRequest
}

// New creates a new stub server.
func New(config Config, logger *zap.Logger) *Server {
	if config.Model == "" {
		config.Model = "stub-model"
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		logger:  logger,
		counter: tokens.WordCounter{},
		app:     app,
	}

	app.Get(sglang.HealthPath, func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	app.Get(sglang.ModelsPath, s.handleModels)
	app.Post(sglang.ChatCompletionsPath, s.handleChat)

	return s
}

// Run starts the server on the configured listening address
func (s *Server) Run() error {
	s.logger.Info("starting stub server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("model", s.config.Model),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Requests returns a copy of every chat request received so far.
func (s *Server) Requests() []sglang.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sglang.ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handleModels(c *fiber.Ctx) error {
	return c.JSON(sglang.ModelList{
		Object: "list",
		Data: []sglang.ModelInfo{
			{ID: s.config.Model, Object: "model", OwnedBy: "stub"},
		},
	})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req sglang.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Warn("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: errorBody{Message: "invalid request body", Type: "invalid_request_error"},
		})
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	s.logger.Debug("received chat request",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	if s.config.FailStatus != 0 {
		return c.Status(s.config.FailStatus).JSON(errorResponse{
			Error: errorBody{Message: "stub configured to fail", Type: "server_error"},
		})
	}

	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != "user" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: errorBody{Message: "last message must have role user", Type: "invalid_request_error"},
		})
	}

	for _, m := range req.Messages {
		if _, err := history.ParseRole(m.Role); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error: errorBody{Message: err.Error(), Type: "invalid_request_error"},
			})
		}
	}

	if s.config.Latency > 0 {
		time.Sleep(s.config.Latency)
	}

	reply := s.config.Reply
	if reply == "" {
		reply = fmt.Sprintf("Echo: %s", req.Messages[len(req.Messages)-1].Content)
	}

	resp := sglang.ChatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   s.config.Model,
		Choices: []sglang.Choice{{
			Index:        0,
			Message:      sglang.ChoiceMessage{Role: "assistant", Content: &reply},
			FinishReason: "stop",
		}},
	}

	if !s.config.OmitUsage {
		prompt := 0
		for _, m := range req.Messages {
			prompt += s.counter.Count(m.Content)
		}
		completion := s.counter.Count(reply)
		resp.Usage = &sglang.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
	}

	return c.JSON(resp)
}
