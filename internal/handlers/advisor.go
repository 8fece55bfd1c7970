package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/ol-advisor-relay/internal/inventory"
	"github.com/oremus-labs/ol-advisor-relay/internal/prompt"
	"github.com/oremus-labs/ol-advisor-relay/internal/relay"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
	"github.com/oremus-labs/ol-advisor-relay/internal/upstream"
	"github.com/oremus-labs/ol-advisor-relay/internal/validator"
)

type advisorRequest struct {
	Scope       prompt.Scope `json:"scope"`
	Rows        []prompt.Row `json:"rows,omitempty"`
	Model       string       `json:"model,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	EchoPrompt  *bool        `json:"echoPrompt,omitempty"`
}

// AdvisorStream runs one relay session and streams it back as server-sent
// events. Errors found before streaming starts are answered as JSON.
func (h *Handler) AdvisorStream(c *gin.Context) {
	if h.relay == nil {
		unavailable(c, "advisor relay")
		return
	}
	body, ok := h.readValidated(c, validator.KindAdvisorRequest)
	if !ok {
		return
	}
	var req advisorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := inventory.ValidScope(req.Scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows := req.Rows
	if rows == nil {
		if h.rows == nil {
			unavailable(c, "inventory")
			return
		}
		var err error
		rows, err = h.rows.Rows(c.Request.Context(), req.Scope)
		if err != nil {
			log.Printf("Failed to aggregate inventory for %s: %v", prompt.ScopeLine(req.Scope), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load inventory"})
			return
		}
	}

	text := prompt.Build(req.Scope, rows)
	upReq := upstream.Request{
		Model:       h.opts.DefaultModel,
		Temperature: h.opts.DefaultTemperature,
		Messages: []upstream.Message{
			{Role: "system", Content: prompt.SystemMessage},
			{Role: "user", Content: text},
		},
	}
	if req.Model != "" {
		upReq.Model = req.Model
	}
	if req.Temperature != nil {
		upReq.Temperature = *req.Temperature
	}
	echo := h.opts.EchoPrompt
	if req.EchoPrompt != nil {
		echo = *req.EchoPrompt
	}

	sse.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	h.relay.Run(c.Request.Context(), sse.NewWriter(c.Writer), relay.Request{
		ID:         requestID(c),
		Scope:      prompt.ScopeLine(req.Scope),
		Upstream:   upReq,
		Prompt:     text,
		EchoPrompt: echo,
	})
}
