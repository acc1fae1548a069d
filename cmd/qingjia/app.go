package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jayceecory-tech/ai-qingjia/internal/config"
	ctxengine "github.com/jayceecory-tech/ai-qingjia/internal/context"
	"github.com/jayceecory-tech/ai-qingjia/internal/gateway"
	"github.com/jayceecory-tech/ai-qingjia/internal/oa"
	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/runtime/tools"
	"github.com/jayceecory-tech/ai-qingjia/internal/state"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm/openai"
)

// app is the wired service shared by serve and chat.
type app struct {
	backend  *oa.Client
	executor *runtime.Executor
	gateway  *gateway.Gateway
}

// newSkills builds the executor over the leave skills plus, when enabled,
// the example set.
func newSkills(cfg *config.Config, backend *oa.Client) (*runtime.Executor, error) {
	registry, err := tools.LeaveSkills(backend)
	if err != nil {
		return nil, fmt.Errorf("register leave skills: %w", err)
	}
	if cfg.Skills.Examples {
		examples, err := tools.ExampleSkills(cfg.Skills.JokeAPI, reminderStore(cfg))
		if err != nil {
			return nil, fmt.Errorf("register example skills: %w", err)
		}
		registry, err = runtime.Merge(registry, examples)
		if err != nil {
			return nil, err
		}
	}
	return runtime.NewExecutor(registry), nil
}

// reminderStore opens the reminder file under the data dir.
func reminderStore(cfg *config.Config) *state.ReminderStore {
	return state.NewReminderStore(filepath.Join(cfg.DataDir, "reminders.json"))
}

// newBackend creates the OA client with its request log under the data dir.
func newBackend(cfg *config.Config) (*oa.Client, error) {
	backend, err := oa.New(cfg.OA.BaseURL, cfg.OA.APIKey)
	if err != nil {
		return nil, fmt.Errorf("create oa client: %w", err)
	}
	backend.UseRequestLog(state.NewRequestStore(cfg.DataDir))
	return backend, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	executor, err := newSkills(cfg, backend)
	if err != nil {
		return nil, err
	}

	employees, err := backend.Employees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	prompt, err := ctxengine.RenderSystemPrompt(employees)
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	engine := ctxengine.New(prompt, cfg.LLM.MaxContextTokens)
	if err := engine.UseTokenizer(cfg.LLM.Model); err != nil {
		slog.Warn("tokenizer unavailable, estimating by characters", "model", cfg.LLM.Model, "error", err)
	}

	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})

	rt := runtime.New(provider, engine, executor)
	return &app{
		backend:  backend,
		executor: executor,
		gateway:  gateway.New(rt, int64(cfg.MaxConcurrent)),
	}, nil
}
