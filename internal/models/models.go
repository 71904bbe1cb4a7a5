// Package models holds the persisted row types shared by internal/store and
// internal/adminapi.
package models

import "time"

// InterceptionRule is one row of interception_rules. A nil/empty Email with
// IsGlobal true matches every user for Method; a non-empty Email is a
// comma-separated allow-list of exact addresses.
type InterceptionRule struct {
	ID             int64     `json:"id"`
	MethodName     string    `json:"method_name"`
	Action         string    `json:"action"` // replace | modify | randomize_app_duration | passthrough
	CustomResponse string    `json:"custom_response,omitempty"`
	Email          string    `json:"email,omitempty"`
	IsGlobal       bool      `json:"is_global"`
	IsEnabled      bool      `json:"is_enabled"`
	Remark         string    `json:"remark,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Command lifecycle: unverified -> verified|rejected -> sent|failed.
const (
	CommandUnverified = "unverified"
	CommandVerified   = "verified"
	CommandRejected   = "rejected"
	CommandSent       = "sent"
	CommandFailed     = "failed"
)

// Command is a device command awaiting admin review before dispatch.
type Command struct {
	ID          int64      `json:"id"`
	CommandJSON string     `json:"command_json"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// RequestLog is one audited proxy exchange.
type RequestLog struct {
	ID                         int64     `json:"id"`
	Method                     string    `json:"method"`
	Email                      string    `json:"email,omitempty"`
	RequestBody                string    `json:"request_body"`
	ResponseBody               string    `json:"response_body"`
	InterceptedRequest         string    `json:"intercepted_request,omitempty"`
	InterceptedResponse        string    `json:"intercepted_response,omitempty"`
	RequestInterceptionAction  string    `json:"request_interception_action,omitempty"`
	ResponseInterceptionAction string    `json:"response_interception_action,omitempty"`
	CreatedAt                  time.Time `json:"created_at"`
}

// TacticsTemplate is a named device-tactics JSON template surfaced only
// through the admin API; the interception pipeline never reads it.
type TacticsTemplate struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	TemplateJSON string    `json:"template_json"`
	IsDefault    bool      `json:"is_default"`
	IsApplied    bool      `json:"is_applied"`
	CreatedAt    time.Time `json:"created_at"`
}
