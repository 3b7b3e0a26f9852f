package webhookapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fossengine/docsync-go/internal/sync"
)

// incomingPayload is the tagged record §9 prescribes: parsed once at
// intake, never re-parsed downstream.
type incomingPayload struct {
	Doctype string
	Docname string
	Action  sync.QueueAction
	Raw     string
}

func (s *Server) handleWebhook(source sync.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}

		if s.secret != "" {
			sig := c.GetHeader(s.signatureHeader)
			if sig == "" || !verifySignature(s.secret, body, []byte(sig)) {
				s.logger.Warn("rejected webhook with missing or invalid signature", "source", source, "path", c.Request.URL.Path)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})

				return
			}
		}

		payload, ok := parsePayload(c, body)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing doctype or name"})
			return
		}

		item := &sync.WebhookQueueItem{
			ID:         uuid.NewString(),
			Source:     source,
			Doctype:    payload.Doctype,
			Docname:    payload.Docname,
			Action:     payload.Action,
			RawPayload: payload.Raw,
		}

		if err := s.store.Enqueue(c.Request.Context(), item); err != nil {
			s.logger.Error("failed to enqueue webhook item", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue"})

			return
		}

		c.JSON(http.StatusAccepted, gin.H{"queued": true, "id": item.ID})
	}
}

// parsePayload extracts doctype/name/action from the top-level JSON object,
// falling back to a nested "doc" object, and accepts form-url-encoded
// bodies carrying a "data" field containing JSON (§4.5).
func parsePayload(c *gin.Context, body []byte) (incomingPayload, bool) {
	raw := body

	if len(raw) == 0 || raw[0] != '{' {
		// handleWebhook has already drained the request body; put it back
		// so FormValue can parse a form-encoded body.
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if data := c.Request.FormValue("data"); data != "" {
			raw = []byte(data)
		}
	}

	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return incomingPayload{}, false
	}

	doctype, _ := top["doctype"].(string)
	name, _ := top["name"].(string)
	action, _ := top["action"].(string)

	if doctype == "" || name == "" {
		if nested, ok := top["doc"].(map[string]any); ok {
			if doctype == "" {
				doctype, _ = nested["doctype"].(string)
			}

			if name == "" {
				name, _ = nested["name"].(string)
			}
		}
	}

	if doctype == "" || name == "" {
		return incomingPayload{}, false
	}

	if action == "" {
		action = string(sync.ActionUpdate)
	}

	return incomingPayload{
		Doctype: doctype,
		Docname: name,
		Action:  sync.QueueAction(action),
		Raw:     string(body),
	}, true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	pending, processing, err := s.store.QueueCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending":    pending,
		"processing": processing,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
