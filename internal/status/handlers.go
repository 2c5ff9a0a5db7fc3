package status

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/notnil/vcucan"
)

// InboxView is the JSON form of an inbox.
type InboxView struct {
	ID        string  `json:"id"`
	Len       uint8   `json:"len"`
	Data      string  `json:"data"`
	Recent    bool    `json:"recent"`
	TimedOut  bool    `json:"timed_out"`
	AgeMS     float64 `json:"age_ms"`
	TimeoutMS float64 `json:"timeout_ms"`
	Received  uint64  `json:"received"`
}

// OutboxView is the JSON form of an outbox.
type OutboxView struct {
	ID       string  `json:"id"`
	Len      uint8   `json:"len"`
	Data     string  `json:"data"`
	PeriodMS float64 `json:"period_ms"`
	PhaseMS  float64 `json:"phase_ms"`
	Sent     uint64  `json:"sent"`
}

// StatsView is the JSON form of the driver counters and fault vector.
type StatsView struct {
	vcucan.Stats
	Faults    string `json:"faults"`
	FaultBits uint32 `json:"fault_bits"`
}

// MailboxesView lists every mailbox in registration order.
type MailboxesView struct {
	Inbound  []InboxView  `json:"inbound"`
	Outbound []OutboxView `json:"outbound"`
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func formatID(id uint32) string { return fmt.Sprintf("0x%X", id) }

func newInboxView(id uint32, in vcucan.Inbox) InboxView {
	return InboxView{
		ID:        formatID(id),
		Len:       in.Len,
		Data:      hex.EncodeToString(in.Bytes()),
		Recent:    in.IsRecent,
		TimedOut:  in.IsTimedOut,
		AgeMS:     ms(in.Age),
		TimeoutMS: ms(in.TimeoutLimit),
		Received:  in.Received,
	}
}

func newOutboxView(id uint32, out vcucan.Outbox) OutboxView {
	n := out.Len
	if n > 8 {
		n = 8
	}
	return OutboxView{
		ID:       formatID(id),
		Len:      out.Len,
		Data:     hex.EncodeToString(out.Data[:n]),
		PeriodMS: ms(out.Period),
		PhaseMS:  ms(out.Phase),
		Sent:     out.Sent,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// parseID accepts decimal or 0x-prefixed hex identifiers.
func parseID(r *http.Request) (uint32, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, "id"), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", chi.URLParam(r, "id"))
	}
	return uint32(v), nil
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	h.lock.Lock()
	view := StatsView{Stats: h.drv.Stats()}
	h.lock.Unlock()
	if h.faults != nil {
		bits := h.faults.Bits()
		view.Faults = bits.String()
		view.FaultBits = uint32(bits)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) mailboxes(w http.ResponseWriter, _ *http.Request) {
	h.lock.Lock()
	ins, outs := h.drv.Registry().Snapshot()
	h.lock.Unlock()

	view := MailboxesView{
		Inbound:  make([]InboxView, 0, len(ins)),
		Outbound: make([]OutboxView, 0, len(outs)),
	}
	for _, e := range ins {
		view.Inbound = append(view.Inbound, newInboxView(e.ID, e.Inbox))
	}
	for _, e := range outs {
		view.Outbound = append(view.Outbound, newOutboxView(e.ID, e.Outbox))
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.lock.Lock()
	in, ok := h.drv.Registry().Inbox(id)
	var snap vcucan.Inbox
	if ok {
		snap = *in
	}
	h.lock.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "inbox not registered")
		return
	}
	writeJSON(w, http.StatusOK, newInboxView(id, snap))
}

func (h *Handler) outbox(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.lock.Lock()
	out, ok := h.drv.Registry().Outbox(id)
	var snap vcucan.Outbox
	if ok {
		snap = *out
	}
	h.lock.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "outbox not registered")
		return
	}
	writeJSON(w, http.StatusOK, newOutboxView(id, snap))
}

// send transmits an outbox immediately, outside its period.
func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.lock.Lock()
	err = h.drv.Send(id)
	h.lock.Unlock()
	switch {
	case errors.Is(err, vcucan.ErrUnknownID):
		writeError(w, http.StatusNotFound, "outbox not registered")
	case err != nil:
		h.logger.Warn("status on-demand send failed", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

func (h *Handler) clearRecent(w http.ResponseWriter, _ *http.Request) {
	h.lock.Lock()
	h.drv.Registry().ClearRecent()
	h.lock.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearFaults(w http.ResponseWriter, _ *http.Request) {
	if h.faults != nil {
		h.faults.ClearAll()
	}
	w.WriteHeader(http.StatusNoContent)
}
