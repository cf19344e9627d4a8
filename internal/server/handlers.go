package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ginjaninja78/etc-mailer/internal/batch"
	"github.com/ginjaninja78/etc-mailer/internal/consolidator"
	"github.com/ginjaninja78/etc-mailer/internal/mailer"
	"github.com/ginjaninja78/etc-mailer/internal/render"
	"github.com/ginjaninja78/etc-mailer/internal/types"
	"github.com/ginjaninja78/etc-mailer/pkg/utils"
)

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// =============================================================================
// STATUS
// =============================================================================

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ValidateForSending(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config": map[string]any{
			"provider":  s.cfg.Mail.Provider,
			"fromName":  s.cfg.Mail.FromName,
			"fromEmail": s.cfg.Mail.FromEmail,
			"replyTo":   s.cfg.Mail.ReplyTo,
			"cc":        s.cfg.Mail.CC,
			"delayMs":   s.cfg.Mail.Delay.Milliseconds(),
		},
	})
}

// =============================================================================
// UPLOAD
// =============================================================================

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	path, err := utils.SaveUpload(s.cfg.UploadsDir, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summary, err := s.processor.ProcessUpload(r.Context(), path)
	if err != nil {
		status := http.StatusInternalServerError
		if consolidator.IsFatal(err) {
			status = http.StatusUnprocessableEntity
		} else if errors.Is(err, batch.ErrUnreadableSheet) {
			status = http.StatusBadRequest
		}
		s.logger.WarnContext(r.Context(), "upload rejected",
			slog.String("file", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	records := s.processor.Records()
	var sample *types.CustomerRecord
	if len(records) > 0 {
		sample = records[0]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"filename":     summary.Files[0].FileName,
		"originalName": header.Filename,
		"recordCount":  len(records),
		"sampleRecord": sample,
		"summary":      summary,
	})
}

// =============================================================================
// PREVIEW
// =============================================================================

type previewRequest struct {
	RecordIndex int `json:"recordIndex"`
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	s.mu.Lock()
	records := s.processor.Records()
	s.mu.Unlock()

	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "No CSV data loaded")
		return
	}
	if req.RecordIndex < 0 || req.RecordIndex >= len(records) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Record index %d not found", req.RecordIndex))
		return
	}

	rec := records[req.RecordIndex]
	result, err := s.engine.Preview(rec.TemplateSelection, rec)
	if err != nil {
		if errors.Is(err, render.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found in templates folder", rec.TemplateSelection))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"html":    result.HTML,
		"customer": map[string]any{
			"email":        rec.Email,
			"customerName": rec.Name,
			"etcNumber":    rec.BusinessKey,
			"vehicleCount": len(rec.Vehicles),
		},
		"template":     rec.TemplateSelection,
		"recordIndex":  req.RecordIndex,
		"totalRecords": len(records),
	})
}

// =============================================================================
// SEND STREAM
// =============================================================================

// progressEvent is one "progress" server-sent event.
type progressEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	Total        int    `json:"total"`
	SentCount    int    `json:"sentCount"`
	FailedCount  int    `json:"failedCount"`
	Status       string `json:"status"`
	Email        string `json:"email"`
	ETCNumber    string `json:"etcNumber"`
	CustomerName string `json:"customerName"`
	Template     string `json:"template"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (s *Service) handleSendStream(w http.ResponseWriter, r *http.Request) {
	stream, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dryRun := r.URL.Query().Get("dryRun") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if !dryRun {
		if err := s.cfg.ValidateForSending(); err != nil {
			stream.send(map[string]any{"type": "error", "error": "Email not configured: " + err.Error()})
			return
		}
	}

	if !s.sending.CompareAndSwap(false, true) {
		stream.send(map[string]any{"type": "error", "error": "A send is already in progress."})
		return
	}
	defer s.sending.Store(false)

	s.mu.Lock()
	recipients := s.processor.Select(batch.Filters{Limit: limit})
	s.mu.Unlock()

	if len(recipients) == 0 {
		stream.send(map[string]any{"type": "error", "error": "No CSV data loaded."})
		return
	}

	total := len(recipients)
	stream.send(map[string]any{"type": "start", "total": total, "dryRun": dryRun})

	var sent, failed int
	stats, err := s.dispatcher.SendAll(r.Context(), recipients, mailer.SendOptions{
		DryRun: dryRun,
		Progress: func(p mailer.Progress) {
			ev := progressEvent{
				Type:         "progress",
				Index:        p.Index,
				Total:        p.Total,
				Email:        p.Result.Email,
				ETCNumber:    p.Result.BusinessKey,
				CustomerName: p.Result.Name,
				Template:     p.Result.Template,
			}
			if p.Result.Succeeded() {
				sent++
				ev.Status = "success"
				ev.Message = "Email sent successfully"
				if dryRun {
					ev.Message = "Dry run - email prepared"
				}
			} else {
				failed++
				ev.Status = "failed"
				ev.Error = p.Result.Error
			}
			ev.SentCount, ev.FailedCount = sent, failed
			stream.send(ev)
		},
	})
	if err != nil {
		stream.send(map[string]any{"type": "error", "error": err.Error()})
		return
	}

	stream.send(map[string]any{
		"type":        "done",
		"total":       stats.Total,
		"sentCount":   stats.Sent + stats.Previewed,
		"failedCount": stats.Failed,
	})
}

// =============================================================================
// DATA
// =============================================================================

func (s *Service) handleData(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	records := s.processor.Records()
	summary := s.processor.Summary()
	s.mu.Unlock()

	if records == nil {
		records = []*types.CustomerRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"recordCount":   len(records),
		"sampleRecords": records,
		"summary":       summary,
	})
}

func (s *Service) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.processor.Clear()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Data cleared"})
}
