package dialog

import "github.com/frontdesk-ai/frontdesk/pkg/llm"

// Function names offered to the model.
const (
	fnExtractCallerName      = "extract_caller_name"
	fnExtractAppointmentTime = "extract_appointment_time"
	fnManageAppointment      = "manage_appointment"
)

// manage_appointment actions.
const (
	actionCheck       = "check"
	actionSchedule    = "schedule"
	actionSuggestNext = "suggest_next"
)

type callerNameArgs struct {
	Name      string `json:"name"`
	Confident bool   `json:"confident"`
}

type appointmentTimeArgs struct {
	Time      string `json:"time"`
	Confident bool   `json:"confident"`
}

type manageAppointmentArgs struct {
	Time   string `json:"time"`
	Action string `json:"action"`
}

// assistantFunctions declares the schemas offered on every model call.
func assistantFunctions() []llm.Function {
	return []llm.Function{
		{
			Name:        fnExtractCallerName,
			Description: "Record the caller's name when they introduce themselves.",
			Parameters: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"name": {
						Type:        llm.TypeString,
						Description: "The caller's name as they said it",
					},
					"confident": {
						Type:        llm.TypeBoolean,
						Description: "True only when the caller clearly stated their name",
					},
				},
				Required: []string{"name", "confident"},
			},
		},
		{
			Name:        fnExtractAppointmentTime,
			Description: "Record a date and time the caller mentioned for an appointment, before their intent is clear.",
			Parameters: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"time": {
						Type:        llm.TypeString,
						Description: "The mentioned time in RFC 3339 format, for example 2026-03-02T10:00:00Z",
					},
					"confident": {
						Type:        llm.TypeBoolean,
						Description: "True only when the caller stated an unambiguous date and time",
					},
				},
				Required: []string{"time", "confident"},
			},
		},
		{
			Name:        fnManageAppointment,
			Description: "Check availability, book an appointment, or find the next open time.",
			Parameters: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"time": {
						Type:        llm.TypeString,
						Description: "The requested time in RFC 3339 format",
					},
					"action": {
						Type:        llm.TypeString,
						Description: "check reports availability, schedule books the slot, suggest_next finds the next open time after the given one",
						Enum:        []string{actionCheck, actionSchedule, actionSuggestNext},
					},
				},
				Required: []string{"time", "action"},
			},
		},
	}
}
