package email

import (
	"embed"
	"fmt"
	"slices"
)

// TemplateName identifies one of the fixed transactional templates.
type TemplateName string

const (
	TemplateWelcome           TemplateName = "welcome"
	TemplateOrderConfirmation TemplateName = "orderConfirmation"
	TemplateOrderShipped      TemplateName = "orderShipped"
	TemplateOrderDelivered    TemplateName = "orderDelivered"
	TemplateOrderCancelled    TemplateName = "orderCancelled"
	TemplateReturnRequested   TemplateName = "returnRequested"
	TemplateReturnStatus      TemplateName = "returnStatus"
)

//go:embed templates/*.md
var templateFS embed.FS

// requiredProps lists the props each template cannot render without.
var requiredProps = map[TemplateName][]string{
	TemplateWelcome:           {"name"},
	TemplateOrderConfirmation: {"name", "orderId", "total", "items", "paymentMethod"},
	TemplateOrderShipped:      {"name", "orderId"},
	TemplateOrderDelivered:    {"name", "orderId"},
	TemplateOrderCancelled:    {"name", "orderId"},
	TemplateReturnRequested:   {"name", "orderId"},
	TemplateReturnStatus:      {"name", "orderId", "status"},
}

// Templates returns the known template names in a stable order.
func Templates() []TemplateName {
	names := make([]TemplateName, 0, len(requiredProps))
	for name := range requiredProps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Valid reports whether name is a known template.
func (n TemplateName) Valid() bool {
	_, ok := requiredProps[n]
	return ok
}

func templatePath(name TemplateName) string {
	return fmt.Sprintf("templates/%s.md", name)
}
