package payments

import (
	"context"
	"time"
)

// ChargeRequest charges a stored payment profile.
type ChargeRequest struct {
	CustomerProfileID string
	PaymentProfileID  string
	Amount            float64
	InvoiceNumber     string
}

// SubscriptionRequest starts a recurring charge against a stored payment
// profile. Zero values fall back to a monthly schedule starting today
// with an open-ended occurrence count.
type SubscriptionRequest struct {
	Name              string
	CustomerProfileID string
	PaymentProfileID  string
	Amount            float64
	IntervalLength    int
	IntervalUnit      string
	StartDate         time.Time
	TotalOccurrences  int
}

// CustomerProfileRequest creates a customer profile on the gateway.
type CustomerProfileRequest struct {
	Email       string
	Description string
}

// PaymentProfileRequest attaches a payment method to a customer profile.
// Card data arrives as an opaque token pair; raw numbers never reach us.
type PaymentProfileRequest struct {
	CustomerProfileID string
	DataDescriptor    string
	DataValue         string
}

// Response is the normalized gateway result. Transport failures, gateway
// rejections and declines all surface as Success=false with a message;
// callers never see a raw error from the processor.
type Response struct {
	Success           bool   `json:"success"`
	TransactionID     string `json:"transaction_id,omitempty"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
	CustomerProfileID string `json:"customer_profile_id,omitempty"`
	PaymentProfileID  string `json:"payment_profile_id,omitempty"`
	ResponseCode      string `json:"response_code,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Gateway is the payment processor surface used by sales and invoices.
type Gateway interface {
	CreateCustomerProfile(ctx context.Context, req CustomerProfileRequest) Response
	CreatePaymentProfile(ctx context.Context, req PaymentProfileRequest) Response
	ChargeProfile(ctx context.Context, req ChargeRequest) Response
	CreateSubscription(ctx context.Context, req SubscriptionRequest) Response
	CancelSubscription(ctx context.Context, subscriptionID string) Response
	GetSubscriptionStatus(ctx context.Context, subscriptionID string) Response
}
