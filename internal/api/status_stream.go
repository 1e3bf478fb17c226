package api

import (
	"context"
	"net/http"
	"time"

	"docqa/internal/middleware"
	"docqa/internal/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

/*
INGESTION STATUS STREAM

GET /ws/documents/{id}/status upgrades to a websocket and pushes the document's
IngestionStatus every time it changes, starting with the current one. The server
closes the connection once ingestion reaches a terminal state. Clients only
listen; anything they send is discarded.
*/

const statusWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) StreamIngestionStatus(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.IngestionStatus",
		attribute.String("document.id", documentID),
	)
	defer span.End()

	// Unknown documents get a plain HTTP error instead of an upgrade.
	status, err := h.documents.IngestionStatus(ctx, documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		h.logger.Warn("failed to upgrade websocket", zap.String("document_id", documentID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go discardReads(conn, cancel)

	h.pushStatus(ctx, conn, documentID, status)
}

// pushStatus sends status and every later change until ingestion is done, the
// client goes away or the document disappears.
func (h *Handler) pushStatus(ctx context.Context, conn *websocket.Conn, documentID string, status *models.IngestionStatus) {
	ticker := time.NewTicker(h.statusPoll)
	defer ticker.Stop()

	var last *models.IngestionStatus
	for {
		if status != nil && statusChanged(last, status) {
			_ = conn.SetWriteDeadline(time.Now().Add(statusWriteWait))
			if err := conn.WriteJSON(status); err != nil {
				h.logger.Debug("status stream write failed", zap.String("document_id", documentID), zap.Error(err))
				return
			}
			last = status
		}
		if last != nil && finished(last) {
			closeNormal(conn, "ingestion finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := h.documents.IngestionStatus(ctx, documentID)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("status stream stopped", zap.String("document_id", documentID), zap.Error(err))
				closeNormal(conn, "document unavailable")
			}
			return
		}
		status = next
	}
}

// finished reports whether the stream can close. A pending document with no job
// is still queued, so it is not finished.
func finished(s *models.IngestionStatus) bool {
	return s.Done() && s.DocumentStatus.Terminal()
}

func statusChanged(prev, next *models.IngestionStatus) bool {
	if prev == nil {
		return true
	}
	if prev.DocumentStatus != next.DocumentStatus {
		return true
	}
	if (prev.Job == nil) != (next.Job == nil) {
		return true
	}
	if next.Job == nil {
		return false
	}
	return prev.Job.ID != next.Job.ID ||
		prev.Job.Status != next.Job.Status ||
		prev.Job.Progress != next.Job.Progress
}

// discardReads drains client frames so control messages are handled, and
// cancels the stream when the client disconnects.
func discardReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func closeNormal(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(statusWriteWait))
}
