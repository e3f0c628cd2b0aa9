package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/email"
)

const notificationIDPrefix = "ntf_"

type statusCopy struct {
	title       string
	description string
	icon        string
}

// statusNotifications holds the fixed customer-facing copy for every status an order can enter
// after placement.
var statusNotifications = map[domain.OrderStatus]statusCopy{
	domain.OrderStatusShipped: {
		title:       "Order Shipped",
		description: "Your order %s has been shipped and is on its way.",
		icon:        "TruckIcon",
	},
	domain.OrderStatusDelivered: {
		title:       "Order Delivered",
		description: "Your order %s has been delivered. Enjoy!",
		icon:        "CheckCircleIcon",
	},
	domain.OrderStatusCancelled: {
		title:       "Order Cancelled",
		description: "Your order %s has been cancelled.",
		icon:        "XCircleIcon",
	},
	domain.OrderStatusReturnRequested: {
		title:       "Return Requested",
		description: "We received your return request for order %s.",
		icon:        "ArrowUturnLeftIcon",
	},
	domain.OrderStatusReturnAccepted: {
		title:       "Return Accepted",
		description: "Your return request for order %s has been accepted.",
		icon:        "CheckBadgeIcon",
	},
	domain.OrderStatusReturnRejected: {
		title:       "Return Rejected",
		description: "Your return request for order %s has been rejected.",
		icon:        "NoSymbolIcon",
	},
	domain.OrderStatusReturnedSuccessfully: {
		title:       "Return Completed",
		description: "Your return for order %s is complete and the refund has been issued.",
		icon:        "ReceiptRefundIcon",
	},
}

const adminNewOrderIcon = "ShoppingBagIcon"

func statusNotification(id string, order domain.Order, status domain.OrderStatus, now time.Time) (domain.Notification, bool) {
	text, ok := statusNotifications[status]
	if !ok {
		return domain.Notification{}, false
	}
	return domain.Notification{
		ID:          id,
		Audience:    domain.NotificationAudienceUser,
		UserID:      order.Customer.UserID,
		OrderID:     order.ID,
		Title:       text.title,
		Description: fmt.Sprintf(text.description, order.ID),
		Icon:        text.icon,
		CreatedAt:   now,
	}, true
}

func adminOrderNotification(id string, order domain.Order, now time.Time) domain.Notification {
	return domain.Notification{
		ID:          id,
		Audience:    domain.NotificationAudienceAdmin,
		OrderID:     order.ID,
		Title:       "New Order",
		Description: fmt.Sprintf("%s placed order %s (%s, %s).", customerName(order), order.ID, order.PaymentMethod, order.Total.StringFixed(domain.MoneyPlaces)),
		Icon:        adminNewOrderIcon,
		CreatedAt:   now,
	}
}

func adminReturnNotification(id string, order domain.Order, reason string, now time.Time) domain.Notification {
	description := fmt.Sprintf("%s requested a return for order %s.", customerName(order), order.ID)
	if reason = strings.TrimSpace(reason); reason != "" {
		description += " Reason: " + reason
	}
	return domain.Notification{
		ID:          id,
		Audience:    domain.NotificationAudienceAdmin,
		OrderID:     order.ID,
		Title:       "Return Requested",
		Description: description,
		Icon:        statusNotifications[domain.OrderStatusReturnRequested].icon,
		CreatedAt:   now,
	}
}

var statusTemplates = map[domain.OrderStatus]email.TemplateName{
	domain.OrderStatusShipped:              email.TemplateOrderShipped,
	domain.OrderStatusDelivered:            email.TemplateOrderDelivered,
	domain.OrderStatusCancelled:            email.TemplateOrderCancelled,
	domain.OrderStatusReturnRequested:      email.TemplateReturnRequested,
	domain.OrderStatusReturnAccepted:       email.TemplateReturnStatus,
	domain.OrderStatusReturnRejected:       email.TemplateReturnStatus,
	domain.OrderStatusReturnedSuccessfully: email.TemplateReturnStatus,
}

func statusEmail(order domain.Order, status domain.OrderStatus) (EmailMessage, bool) {
	template, ok := statusTemplates[status]
	if !ok || strings.TrimSpace(order.Customer.Email) == "" {
		return EmailMessage{}, false
	}
	props := map[string]any{
		"name":    customerName(order),
		"orderId": order.ID,
	}
	switch template {
	case email.TemplateOrderShipped:
		if order.Courier != "" {
			props["courier"] = order.Courier
		}
	case email.TemplateReturnStatus:
		props["status"] = string(status)
	}
	return EmailMessage{To: order.Customer.Email, Template: template, Props: props}, true
}

func confirmationEmail(order domain.Order) (EmailMessage, bool) {
	if strings.TrimSpace(order.Customer.Email) == "" {
		return EmailMessage{}, false
	}
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":      item.Name,
			"size":      item.Size,
			"quantity":  item.Quantity,
			"unitPrice": item.UnitPrice.StringFixed(domain.MoneyPlaces),
		})
	}
	return EmailMessage{
		To:       order.Customer.Email,
		Template: email.TemplateOrderConfirmation,
		Props: map[string]any{
			"name":          customerName(order),
			"orderId":       order.ID,
			"total":         order.Total.StringFixed(domain.MoneyPlaces),
			"items":         items,
			"paymentMethod": string(order.PaymentMethod),
		},
	}, true
}

func customerName(order domain.Order) string {
	if name := strings.TrimSpace(order.Customer.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(order.ShippingAddress.Name); name != "" {
		return name
	}
	return "Customer"
}
