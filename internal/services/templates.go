package services

import (
	"fmt"
	"os"
	"strings"
)

// TemplateConfig holds template configuration
type TemplateConfig struct {
	SID         string // Twilio Content SID; empty sends Body as free text
	Description string
	Parameters  []string
	Body        string
}

// Template names used by the assignment notifier.
const (
	TemplateBidReceived         = "crew_bid_received"
	TemplateAssignmentConfirmed = "crew_assignment_confirmed"
	TemplateBidDeclined         = "crew_bid_declined"
	TemplateAssignmentCancelled = "crew_assignment_cancelled"
	TemplateTripFullyStaffed    = "crew_trip_fully_staffed"
)

// WhatsAppTemplates maps template names to their content. Content SIDs are
// read from TWILIO_TEMPLATE_<NAME> so each environment can use its own approvals.
var WhatsAppTemplates = map[string]TemplateConfig{
	TemplateBidReceived: {
		Description: "Owner: a driver bid for a seat on the trip",
		Parameters:  []string{"driver_name", "role", "trip_title"},
		Body:        "🙋 {{driver_name}} has applied as {{role}} driver for {{trip_title}}. Reply in the app to accept or decline.",
	},
	TemplateAssignmentConfirmed: {
		Description: "Driver: assignment accepted",
		Parameters:  []string{"driver_name", "role", "trip_title", "amount"},
		Body:        "✅ {{driver_name}}, you are confirmed as {{role}} driver for {{trip_title}}. Pay: {{amount}}.",
	},
	TemplateBidDeclined: {
		Description: "Driver: bid declined by the owner",
		Parameters:  []string{"driver_name", "trip_title"},
		Body:        "{{driver_name}}, the owner has filled {{trip_title}} with another driver. Keep an eye out for new trips!",
	},
	TemplateAssignmentCancelled: {
		Description: "Driver: assignment cancelled",
		Parameters:  []string{"driver_name", "trip_title", "reason"},
		Body:        "🚫 {{driver_name}}, your assignment on {{trip_title}} was cancelled: {{reason}}.",
	},
	TemplateTripFullyStaffed: {
		Description: "Owner: every seat on the trip is filled",
		Parameters:  []string{"trip_title"},
		Body:        "🚚 {{trip_title}} is fully staffed and ready for the contract.",
	},
}

// TemplateService handles WhatsApp template operations
type TemplateService struct {
	sender    WhatsAppSender
	templates map[string]TemplateConfig
}

// NewTemplateService creates a new template service
func NewTemplateService(sender WhatsAppSender) *TemplateService {
	templates := make(map[string]TemplateConfig, len(WhatsAppTemplates))
	for name, tpl := range WhatsAppTemplates {
		if sid := os.Getenv("TWILIO_TEMPLATE_" + strings.ToUpper(name)); sid != "" {
			tpl.SID = sid
		}
		templates[name] = tpl
	}
	return &TemplateService{
		sender:    sender,
		templates: templates,
	}
}

// SendTemplate sends a WhatsApp template with parameters
func (ts *TemplateService) SendTemplate(to string, templateName string, params map[string]string) error {
	template, exists := ts.templates[templateName]
	if !exists {
		return fmt.Errorf("template '%s' not found", templateName)
	}

	// Validate required parameters
	for _, requiredParam := range template.Parameters {
		if _, ok := params[requiredParam]; !ok {
			return fmt.Errorf("missing required parameter: %s", requiredParam)
		}
	}

	if template.SID == "" {
		return ts.sender.SendWhatsAppMessage(to, RenderTemplate(template, params))
	}

	// Twilio uses {{1}}, {{2}}, etc.
	contentVariables := make(map[string]string)
	for i, paramName := range template.Parameters {
		contentVariables[fmt.Sprintf("%d", i+1)] = params[paramName]
	}
	return ts.sender.SendWhatsAppTemplate(to, template.SID, contentVariables)
}

// RenderTemplate fills the free-text body of a template.
func RenderTemplate(template TemplateConfig, params map[string]string) string {
	pairs := make([]string, 0, 2*len(template.Parameters))
	for _, name := range template.Parameters {
		pairs = append(pairs, "{{"+name+"}}", params[name])
	}
	return strings.NewReplacer(pairs...).Replace(template.Body)
}
