// Package inspect exposes the assembly engine over HTTP for debugging:
// one-shot assembly requests, and a live trace feed of audit records.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kayz/promptforge/internal/assembly"
	"github.com/kayz/promptforge/internal/audit"
	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/config"
	"github.com/kayz/promptforge/internal/logger"
	"github.com/kayz/promptforge/internal/prompt"
	"github.com/kayz/promptforge/internal/tokenizer"
)

// Server serves assembly requests and the trace feed.
type Server struct {
	cfg       *config.Config
	counter   tokenizer.Counter
	auditor   *audit.Writer
	hub       *hub
	cron      *cron.Cron
	startedAt time.Time
}

// NewServer wires a server from configuration. The audit writer's records
// are mirrored to connected trace subscribers.
func NewServer(cfg *config.Config, counter tokenizer.Counter, auditor *audit.Writer) *Server {
	s := &Server{
		cfg:       cfg,
		counter:   counter,
		auditor:   auditor,
		hub:       newHub(),
		cron:      cron.New(),
		startedAt: time.Now().UTC(),
	}
	auditor.OnRecord(s.hub.broadcast)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/v1/assemble", s.handleAssemble)
	mux.HandleFunc("/ws/trace", s.hub.handleSubscribe)
	return mux
}

// Run starts the audit-pruning schedule and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@daily", func() {
		if err := s.auditor.Cleanup(); err != nil {
			logger.Warn("audit cleanup failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule audit cleanup: %w", err)
	}
	s.cron.Start()
	defer s.cron.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Serve.Port),
		Handler: s.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("inspection service listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"started_at": s.startedAt.Format(time.RFC3339),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

type promptDTO struct {
	Identifier string `json:"identifier"`
	Role       string `json:"role,omitempty"`
	Content    string `json:"content"`
	Position   string `json:"position,omitempty"`
	Depth      int    `json:"depth,omitempty"`
	Order      int    `json:"order,omitempty"`
}

type turnDTO struct {
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Content   string `json:"content"`
	Signature string `json:"signature,omitempty"`
}

type assembleRequest struct {
	Kind            string      `json:"kind,omitempty"`
	Model           string      `json:"model,omitempty"`
	Group           bool        `json:"group,omitempty"`
	ContinuePrefill bool        `json:"continue_prefill,omitempty"`
	PrefillText     string      `json:"prefill_text,omitempty"`
	Prompts         []promptDTO `json:"prompts,omitempty"`
	Turns           []turnDTO   `json:"turns,omitempty"`
	Examples        [][]turnDTO `json:"examples,omitempty"`
}

type assembleResponse struct {
	Messages []assembly.WireMessage `json:"messages"`
	Report   *assembly.Report       `json:"report"`
	RecordID string                 `json:"record_id"`
}

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req assembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	kind := assembly.Kind(req.Kind)
	if kind == "" {
		kind = assembly.KindNormal
	}

	slots := make([]*prompt.Prompt, 0, len(req.Prompts))
	for _, p := range req.Prompts {
		position := prompt.Position(p.Position)
		if position == "" {
			position = prompt.PositionRelative
		}
		role := prompt.Role(p.Role)
		if role == "" {
			role = prompt.RoleSystem
		}
		slots = append(slots, &prompt.Prompt{
			Identifier: p.Identifier,
			Role:       role,
			Content:    p.Content,
			Position:   position,
			Depth:      p.Depth,
			Order:      p.Order,
		})
	}
	merged := prompt.Merge(s.cfg.PromptCollection(), slots)

	asm := assembly.NewAssembler(s.counter, s.cfg.Assembly())
	chat, report, err := asm.Assemble(r.Context(), assembly.Request{
		Kind:            kind,
		Prompts:         merged,
		Turns:           turnsFromDTO(req.Turns),
		Examples:        exampleBlocksFromDTO(req.Examples),
		Group:           req.Group,
		ContinuePrefill: req.ContinuePrefill,
		PrefillText:     req.PrefillText,
	})

	digest, _ := json.Marshal(req)
	if err != nil {
		logger.Error("assembly failed: %v", err)
		rec := audit.NewRecord(&assembly.Report{}, req.Model, digest)
		rec.Error = err.Error()
		if auditErr := s.auditor.Write(rec); auditErr != nil {
			logger.Warn("audit write failed: %v", auditErr)
		}
		status := http.StatusInternalServerError
		var budgetErr *assembly.TokenBudgetExceededError
		if errors.As(err, &budgetErr) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	rec := audit.NewRecord(report, req.Model, digest)
	if auditErr := s.auditor.Write(rec); auditErr != nil {
		logger.Warn("audit write failed: %v", auditErr)
	}

	writeJSON(w, http.StatusOK, assembleResponse{
		Messages: chat,
		Report:   report,
		RecordID: rec.ID,
	})
}

func turnsFromDTO(in []turnDTO) []chatlog.Turn {
	out := make([]chatlog.Turn, 0, len(in))
	for _, t := range in {
		out = append(out, chatlog.Turn{Role: t.Role, Name: t.Name, Content: t.Content, Signature: t.Signature})
	}
	return out
}

func exampleBlocksFromDTO(in [][]turnDTO) [][]chatlog.Turn {
	out := make([][]chatlog.Turn, 0, len(in))
	for _, block := range in {
		out = append(out, turnsFromDTO(block))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
