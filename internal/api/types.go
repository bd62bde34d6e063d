package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
	"github.com/hackgods/clinic-appointment-booking/internal/symptom"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Requests

type ReserveRequest struct {
	ProviderID string `json:"provider_id"`
	PatientID  string `json:"patient_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Symptoms   string `json:"symptoms"`
	Channel    string `json:"channel"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type BlockRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

type SpecialtyRequest struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	PreVisitInstructions string `json:"pre_visit_instructions"`
}

type ProviderRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

type RuleRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start_time"`
	End       string `json:"end_time"`
}

type PatientRequest struct {
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Address     string `json:"address"`
}

type ResolveRequest struct {
	Text string `json:"text"`
}

type ConversationRequest struct {
	ContactPhone string `json:"contact_phone"`
	Channel      string `json:"channel"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	SessionID    string `json:"session_id"`
}

// Responses

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	SerialNumber    string    `json:"serial_number"`
	PatientID       uuid.UUID `json:"patient_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Symptoms        string    `json:"symptoms,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Channel         string    `json:"channel"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ConfirmationResponse struct {
	AppointmentResponse
	ProviderName         string `json:"provider_name"`
	Specialty            string `json:"specialty"`
	PreVisitInstructions string `json:"pre_visit_instructions,omitempty"`
}

type SlotResponse struct {
	ProviderID      uuid.UUID `json:"provider_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

type SlotsResponse struct {
	ProviderID uuid.UUID      `json:"provider_id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Slots      []SlotResponse `json:"slots"`
}

type SpecialtyResponse struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	PreVisitInstructions string `json:"pre_visit_instructions,omitempty"`
}

type ProviderResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
}

type RuleResponse struct {
	ID         int64     `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	DayOfWeek  int       `json:"day_of_week"`
	Start      string    `json:"start_time"`
	End        string    `json:"end_time"`
	Active     bool      `json:"is_active"`
}

type ResolveResponse struct {
	Matches   []symptom.Match    `json:"matches"`
	Urgency   symptom.Urgency    `json:"urgency"`
	Providers []ProviderResponse `json:"providers"`
}

type StatsResponse struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	ByChannel map[string]int `json:"by_channel"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		SerialNumber:    a.SerialNumber,
		PatientID:       a.PatientID,
		ProviderID:      a.ProviderID,
		Date:            slot.FormatDate(a.Date),
		Time:            a.Time.String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Symptoms:        a.Symptoms,
		Notes:           a.Notes,
		Channel:         string(a.Channel),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentList(in []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ProviderID:      s.ProviderID,
		Date:            slot.FormatDate(s.Date),
		Time:            s.Time.String(),
		DurationMinutes: int(s.Duration / time.Minute),
		Status:          string(s.Status),
	}
}

func toSpecialtyResponse(s directory.Specialty) SpecialtyResponse {
	return SpecialtyResponse{
		ID:                   s.ID,
		Name:                 s.Name,
		Description:          s.Description,
		PreVisitInstructions: s.PreVisitInstructions,
	}
}

func toProviderResponse(p directory.Provider) ProviderResponse {
	return ProviderResponse{ID: p.ID, Name: p.Name, Specialty: p.Specialty, Phone: p.Phone, Email: p.Email}
}

func toProviderList(in []directory.Provider) []ProviderResponse {
	out := make([]ProviderResponse, 0, len(in))
	for _, p := range in {
		out = append(out, toProviderResponse(p))
	}
	return out
}

func toRuleResponse(r directory.Rule) RuleResponse {
	return RuleResponse{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		DayOfWeek:  r.DayOfWeek,
		Start:      r.Start.String(),
		End:        r.End.String(),
		Active:     r.Active,
	}
}
