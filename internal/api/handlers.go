package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Invalid("%s must be a valid UUID", name)
	}
	return id, nil
}

func parseUUID(field, v string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return uuid.Nil, apperr.Invalid("%s must be a valid UUID", field)
	}
	return id, nil
}

func parseDateTime(date, tod string) (time.Time, slot.TimeOfDay, error) {
	d, err := slot.ParseDate(date)
	if err != nil {
		return time.Time{}, 0, err
	}
	t, err := slot.ParseTimeOfDay(tod)
	if err != nil {
		return time.Time{}, 0, err
	}
	return d, t, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid("%s must be an integer", name)
	}
	return n, nil
}

// Appointments

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	providerID, err := parseUUID("provider_id", req.ProviderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	patientID, err := parseUUID("patient_id", req.PatientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date, tod, err := parseDateTime(req.Date, req.Time)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conf, err := h.booking.Reserve(r.Context(), appointment.ReserveRequest{
		ProviderID: providerID,
		Date:       date,
		Time:       tod,
		PatientID:  patientID,
		Symptoms:   req.Symptoms,
		Channel:    appointment.Channel(strings.ToLower(strings.TrimSpace(req.Channel))),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ConfirmationResponse{
		AppointmentResponse:  toAppointmentResponse(conf.Appointment),
		ProviderName:         conf.ProviderName,
		Specialty:            conf.Specialty,
		PreVisitInstructions: conf.PreVisitInstructions,
	})
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	appt, err := h.booking.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handler) getAppointmentBySerial(w http.ResponseWriter, r *http.Request) {
	appt, err := h.booking.GetBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	appt, err := h.booking.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handler) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, tod, err := parseDateTime(req.Date, req.Time)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.booking.Reschedule(r.Context(), id, date, tod)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handler) listPatientAppointments(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.booking.ListByPatientPhone(r.Context(), chi.URLParam(r, "phone"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *Handler) listProviderAppointments(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date := h.availability.Today()
	if v := r.URL.Query().Get("date"); v != "" {
		if date, err = slot.ParseDate(v); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	list, err := h.booking.ListByProviderDate(r.Context(), id, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.booking.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := StatsResponse{Total: st.Total, ByStatus: map[string]int{}, ByChannel: map[string]int{}}
	for k, v := range st.ByStatus {
		resp.ByStatus[string(k)] = v
	}
	for k, v := range st.ByChannel {
		resp.ByChannel[string(k)] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

// Slots

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	from := h.availability.Today()
	if v := q.Get("from"); v != "" {
		if from, err = slot.ParseDate(v); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	to := from.AddDate(0, 0, h.windowDays-1)
	if v := q.Get("to"); v != "" {
		if to, err = slot.ParseDate(v); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	slots, err := h.availability.ListAvailableSlots(r.Context(), id, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := SlotsResponse{
		ProviderID: id,
		From:       slot.FormatDate(from),
		To:         slot.FormatDate(to),
		Slots:      make([]SlotResponse, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, toSlotResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) blockSlot(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req BlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, tod, err := parseDateTime(req.Date, req.Time)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.booking.BlockSlot(r.Context(), slot.NewKey(id, date, tod), req.Reason); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unblockSlot(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	date, tod, err := parseDateTime(q.Get("date"), q.Get("time"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.booking.UnblockSlot(r.Context(), slot.NewKey(id, date, tod)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
