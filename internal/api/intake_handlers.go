package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/convlog"
	"github.com/hackgods/clinic-appointment-booking/internal/patient"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

// resolveSymptoms suggests specialties and, for the best one, its providers. The caller decides
// whether to offer them or escalate when urgency is high.
func (h *Handler) resolveSymptoms(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.fail(w, r, apperr.Invalid("text is required"))
		return
	}

	resp := ResolveResponse{
		Matches:   h.symptoms.Resolve(req.Text),
		Urgency:   h.symptoms.Assess(req.Text),
		Providers: []ProviderResponse{},
	}
	if len(resp.Matches) > 0 {
		providers, err := h.directory.ListProviders(r.Context(), resp.Matches[0].Specialty)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Providers = toProviderList(providers)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) findOrCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p := patient.Patient{
		Phone:   req.Phone,
		Name:    req.Name,
		Email:   req.Email,
		Gender:  req.Gender,
		Address: req.Address,
	}
	if req.DateOfBirth != "" {
		dob, err := slot.ParseDate(req.DateOfBirth)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		p.DateOfBirth = &dob
	}

	out, err := h.patients.FindOrCreate(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) appendConversation(w http.ResponseWriter, r *http.Request) {
	var req ConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	e, err := h.conversations.Append(r.Context(), convlog.Entry{
		ContactPhone: req.ContactPhone,
		Channel:      convlog.Channel(req.Channel),
		Role:         convlog.Role(req.Role),
		Content:      req.Content,
		SessionID:    req.SessionID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) listConversation(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.conversations.List(r.Context(), chi.URLParam(r, "phone"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []convlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
