package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/dolphin/store"
)

// ChatRequest is one user utterance.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatMemory is a retrieved fact as shown to the client (the "memory vault"
// panel in the reference UI).
type ChatMemory struct {
	Type         string  `json:"type"`
	Key          string  `json:"key"`
	Value        string  `json:"value"`
	RelativeTime string  `json:"relative_time"`
	Score        float32 `json:"score"`
}

// ChatResponse is the grounded reply plus the memories used to produce it.
type ChatResponse struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	Memories  []ChatMemory `json:"memories"`
}

func (s *Server) chat(c echo.Context) error {
	req := &ChatRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = shortuuid.New()
	}

	result, err := s.engine.ProcessTurn(c.Request().Context(), req.SessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to process turn").SetInternal(err)
	}

	memories := make([]ChatMemory, 0, len(result.Memories))
	for _, m := range result.Memories {
		memories = append(memories, ChatMemory{
			Type:         string(m.Fact.Type),
			Key:          m.Fact.Key,
			Value:        m.Fact.Value,
			RelativeTime: m.RelativeTime,
			Score:        m.Score,
		})
	}

	return c.JSON(http.StatusOK, &ChatResponse{
		SessionID: req.SessionID,
		Reply:     result.Reply,
		Memories:  memories,
	})
}

// TurnView is one conversation log entry.
type TurnView struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"created_ts"`
}

func (s *Server) listTurns(c echo.Context) error {
	sessionID := c.Param("session")
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	turns, err := s.engine.RecentTurns(c.Request().Context(), sessionID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list turns").SetInternal(err)
	}

	views := make([]TurnView, 0, len(turns))
	for _, turn := range turns {
		views = append(views, TurnView{
			Role:      string(turn.Role),
			Content:   turn.Content,
			CreatedTs: turn.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, views)
}

// FactView is one memory fact, including archived history.
type FactView struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float32 `json:"confidence"`
	Status     string  `json:"status"`
	CreatedTs  int64   `json:"created_ts"`
}

// listFacts exposes the session's fact history for audit: active facts plus
// their archived predecessors.
func (s *Server) listFacts(c echo.Context) error {
	sessionID := c.Param("session")

	find := &store.FindMemoryFact{SessionID: &sessionID}
	if raw := c.QueryParam("status"); raw != "" {
		status := store.FactStatus(raw)
		if status != store.FactStatusActive && status != store.FactStatusArchived {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		find.Status = &status
	}

	facts, err := s.store.ListMemoryFacts(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list facts").SetInternal(err)
	}

	views := make([]FactView, 0, len(facts))
	for _, fact := range facts {
		views = append(views, FactView{
			ID:         fact.ID,
			Type:       string(fact.Type),
			Key:        fact.Key,
			Value:      fact.Value,
			Confidence: fact.Confidence,
			Status:     string(fact.Status),
			CreatedTs:  fact.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, views)
}
