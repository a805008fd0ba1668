package main

import (
	"time"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/calculators"
	"github.com/liamcoop/recalc/recalc"
)

// API request and response models

// CalculatorResponse represents a calculator in API responses
type CalculatorResponse struct {
	ID           string                 `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name         string                 `json:"name" example:"financial-calculator"`
	Description  string                 `json:"description,omitempty"`
	Active       bool                   `json:"active" example:"true"`
	DefaultGroup string                 `json:"defaultGroup,omitempty" example:"main"`
	Triggers     []string               `json:"triggers"`
	Groups       []string               `json:"groups"`
	CreatedAt    time.Time              `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt    time.Time              `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Definition   *calculator.Definition `json:"definition,omitempty"`
} // @name CalculatorResponse

// CalculatorsListResponse represents the response for listing calculators
type CalculatorsListResponse struct {
	Calculators []CalculatorResponse `json:"calculators"`
} // @name CalculatorsListResponse

// CreateSessionRequest opens a session. Calculator is an id or a name and
// defaults to the financial calculator.
type CreateSessionRequest struct {
	Calculator string         `json:"calculator,omitempty" example:"financial-calculator"`
	Values     map[string]any `json:"values,omitempty"`
} // @name CreateSessionRequest

// SetFieldRequest represents the request body for changing a field
type SetFieldRequest struct {
	Value any `json:"value"`
} // @name SetFieldRequest

// PassResponse is the outcome of a pass and the values it refreshed,
// cascades included
type PassResponse struct {
	Result *recalc.Result `json:"result"`
	Values map[string]any `json:"values"`
	State  string         `json:"state"`
} // @name PassResponse

// RunRequest selects a full recalculation. An empty group runs the
// default group; Required overrides the group's required fields.
type RunRequest struct {
	Group    string   `json:"group,omitempty" example:"uk"`
	Required []string `json:"required,omitempty"`
} // @name RunRequest

// MissingFieldsResponse is returned with 422 when a full recalculation
// is refused
type MissingFieldsResponse struct {
	Error   string   `json:"error" example:"Please fill these required fields first: Main Purchase Price"`
	Missing []string `json:"missing"`
	Fields  []string `json:"fields"`
} // @name MissingFieldsResponse

// PutRecordRequest represents a linked record sent for storage
type PutRecordRequest struct {
	Name    string         `json:"name" example:"OPP-0042"`
	Address string         `json:"address" example:"22 Canal Side"`
	Data    map[string]any `json:"data,omitempty"`
} // @name PutRecordRequest

func toCalculatorResponse(e *calculators.Entry, withDefinition bool) CalculatorResponse {
	resp := CalculatorResponse{
		ID:           e.Stored.ID,
		Name:         e.Stored.Name,
		Description:  e.Stored.Definition.Description,
		Active:       e.Stored.Active,
		DefaultGroup: e.Calculator.Engine.DefaultGroup(),
		Triggers:     e.Calculator.Engine.Triggers(),
		Groups:       make([]string, 0, len(e.Stored.Definition.Groups)),
		CreatedAt:    e.Stored.CreatedAt,
		UpdatedAt:    e.Stored.UpdatedAt,
	}
	for _, g := range e.Stored.Definition.Groups {
		resp.Groups = append(resp.Groups, g.Name)
	}
	if withDefinition {
		resp.Definition = e.Stored.Definition
	}
	return resp
}
