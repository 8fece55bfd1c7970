package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/ol-advisor-relay/internal/inventory"
	"github.com/oremus-labs/ol-advisor-relay/internal/prompt"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
	"github.com/oremus-labs/ol-advisor-relay/internal/validator"
)

type upsertInventoryRequest struct {
	Items []store.InventoryItem `json:"items"`
}

// UpsertInventory inserts or replaces inventory items.
func (h *Handler) UpsertInventory(c *gin.Context) {
	if h.inventory == nil {
		unavailable(c, "inventory")
		return
	}
	body, ok := h.readValidated(c, validator.KindInventoryItems)
	if !ok {
		return
	}
	var req upsertInventoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items required"})
		return
	}
	if err := h.inventory.UpsertInventoryItems(c.Request.Context(), req.Items); err != nil {
		log.Printf("Failed to upsert inventory: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store inventory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": len(req.Items)})
}

// InventoryRows returns the aggregated prompt rows and rendered prompt for a
// scope given as query parameters.
func (h *Handler) InventoryRows(c *gin.Context) {
	if h.rows == nil {
		unavailable(c, "inventory")
		return
	}
	scope := prompt.Scope{
		Kind:          prompt.ScopeKind(c.DefaultQuery("kind", string(prompt.ScopeWarehouse))),
		WarehouseName: c.Query("warehouse"),
		FloorName:     c.Query("floor"),
		ZoneName:      c.Query("zone"),
	}
	if err := inventory.ValidScope(scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := h.rows.Rows(c.Request.Context(), scope)
	if err != nil {
		log.Printf("Failed to aggregate inventory for %s: %v", prompt.ScopeLine(scope), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load inventory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scope":  prompt.ScopeLine(scope),
		"rows":   rows,
		"prompt": prompt.Build(scope, rows),
	})
}
