package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

func (h *Handler) listSpecialties(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.ListSpecialties(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]SpecialtyResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSpecialtyResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createSpecialty(w http.ResponseWriter, r *http.Request) {
	var req SpecialtyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sp, err := h.directory.CreateSpecialty(r.Context(), directory.Specialty{
		Name:                 req.Name,
		Description:          req.Description,
		PreVisitInstructions: req.PreVisitInstructions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSpecialtyResponse(*sp))
}

func (h *Handler) getSpecialty(w http.ResponseWriter, r *http.Request) {
	sp, err := h.directory.GetSpecialty(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpecialtyResponse(*sp))
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.ListProviders(r.Context(), r.URL.Query().Get("specialty"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderList(list))
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.directory.CreateProvider(r.Context(), directory.Provider{
		Name: req.Name, Specialty: req.Specialty, Phone: req.Phone, Email: req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProviderResponse(*p))
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.directory.GetProvider(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(*p))
}

func (h *Handler) updateProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ProviderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.directory.UpdateProvider(r.Context(), directory.Provider{
		ID: id, Name: req.Name, Specialty: req.Specialty, Phone: req.Phone, Email: req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(*p))
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	rules, err := h.directory.ListRules(r.Context(), id, activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req RuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := slot.ParseTimeOfDay(req.Start)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := slot.ParseTimeOfDay(req.End)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rule, err := h.directory.AddRule(r.Context(), directory.Rule{
		ProviderID: id, DayOfWeek: req.DayOfWeek, Start: start, End: end,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(*rule))
}

func (h *Handler) setRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
		if err != nil {
			h.fail(w, r, apperr.Invalid("ruleID must be an integer"))
			return
		}
		rule, err := h.directory.SetRuleActive(r.Context(), id, active)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRuleResponse(*rule))
	}
}
