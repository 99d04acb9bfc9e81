// File: cmd/seed/main.go
// seed creates the database schema and a couple of demo agents so a fresh
// environment has something to dispatch tasks to.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"agenthub/internal/config"
	"agenthub/internal/domain/model"
	pg "agenthub/internal/infra/db/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
  id            TEXT PRIMARY KEY,
  name          TEXT NOT NULL,
  description   TEXT NOT NULL DEFAULT '',
  status        TEXT NOT NULL DEFAULT 'active',
  config        JSONB NOT NULL DEFAULT '{}',
  total_tasks   INTEGER NOT NULL DEFAULT 0,
  success_tasks INTEGER NOT NULL DEFAULT 0,
  success_rate  NUMERIC(5,1) NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
  id           TEXT PRIMARY KEY,
  agent_id     TEXT NOT NULL REFERENCES agents(id),
  title        TEXT NOT NULL DEFAULT '',
  input        TEXT NOT NULL,
  priority     TEXT NOT NULL DEFAULT 'normal',
  status       TEXT NOT NULL DEFAULT 'pending',
  output       JSONB,
  error        TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  started_at   TIMESTAMPTZ,
  completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS tasks_agent_created_idx ON tasks (agent_id, created_at DESC);
CREATE INDEX IF NOT EXISTS tasks_status_idx ON tasks (status);

CREATE TABLE IF NOT EXISTS logs (
  id         TEXT PRIMARY KEY,
  level      TEXT NOT NULL,
  message    TEXT NOT NULL,
  metadata   JSONB,
  task_id    TEXT NOT NULL,
  agent_id   TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS logs_task_idx ON logs (task_id);
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	withDemo := flag.Bool("demo", true, "insert demo agents")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	if !*withDemo {
		return
	}

	repo := pg.NewAgentRepo(pool)
	temp := 0.7
	maxTokens := 2000
	demos := []*model.Agent{
		{
			ID:          "demo-writer",
			Name:        "Writer",
			Description: "a content writer that drafts clear, concise copy",
			Status:      model.AgentStatusActive,
			Config: model.AgentConfig{
				Provider:    "openai",
				Model:       cfg.AI.DefaultModel,
				Temperature: &temp,
				MaxTokens:   &maxTokens,
			},
		},
		{
			ID:          "demo-analyst",
			Name:        "Analyst",
			Description: "a research analyst that summarizes documents and extracts key facts",
			Status:      model.AgentStatusActive,
			Config: model.AgentConfig{
				Provider:     "anthropic",
				Model:        "claude-3-haiku-20240307",
				SystemPrompt: "You are a careful analyst. Answer with a short summary followed by bullet points.",
			},
		},
	}
	for _, a := range demos {
		if err := repo.Save(ctx, nil, a); err != nil {
			log.Fatalf("seed agent %s: %v", a.ID, err)
		}
		log.Printf("seeded agent %s (%s/%s)", a.ID, a.Config.Provider, a.Config.Model)
	}
}
