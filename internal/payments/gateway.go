package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"sentra-backend/internal/config"
)

const sandboxEndpoint = "https://apitest.authorize.net/xml/v1/request.api"

// Client talks to the Authorize.Net JSON API. It implements Gateway.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	loginID        string
	transactionKey string
}

// NewClient builds a gateway client from environment configuration.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.GetEnvDuration("AUTHNET_TIMEOUT", 30*time.Second),
		},
		endpoint:       config.GetEnv("AUTHNET_ENDPOINT", sandboxEndpoint),
		loginID:        config.GetEnv("AUTHNET_API_LOGIN_ID", ""),
		transactionKey: config.GetEnv("AUTHNET_TRANSACTION_KEY", ""),
	}
}

// NewClientWith builds a client against a specific endpoint. Used by tests.
func NewClientWith(endpoint, loginID, transactionKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:     httpClient,
		endpoint:       endpoint,
		loginID:        loginID,
		transactionKey: transactionKey,
	}
}

type merchantAuthentication struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type apiMessages struct {
	ResultCode string `json:"resultCode"`
	Message    []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"message"`
}

type transactionResponse struct {
	ResponseCode string `json:"responseCode"`
	TransID      string `json:"transId"`
	Messages     []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"messages"`
	Errors []struct {
		ErrorCode string `json:"errorCode"`
		ErrorText string `json:"errorText"`
	} `json:"errors"`
}

func (c *Client) auth() merchantAuthentication {
	return merchantAuthentication{Name: c.loginID, TransactionKey: c.transactionKey}
}

// post sends a request body and decodes the response into out. The
// Authorize.Net API prefixes its JSON responses with a UTF-8 BOM, which
// must be stripped before decoding.
func (c *Client) post(ctx context.Context, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func failure(message string) Response {
	return Response{Success: false, Message: message}
}

// CreateCustomerProfile registers a customer on the gateway and returns
// its profile id.
func (c *Client) CreateCustomerProfile(ctx context.Context, req CustomerProfileRequest) Response {
	body := map[string]interface{}{
		"createCustomerProfileRequest": map[string]interface{}{
			"merchantAuthentication": c.auth(),
			"profile": map[string]interface{}{
				"email":       req.Email,
				"description": req.Description,
			},
		},
	}

	var parsed struct {
		CustomerProfileID string      `json:"customerProfileId"`
		Messages          apiMessages `json:"messages"`
	}
	if err := c.post(ctx, body, &parsed); err != nil {
		logrus.WithError(err).Warn("gateway customer profile create failed")
		return failure(err.Error())
	}

	if parsed.Messages.ResultCode != "Ok" || parsed.CustomerProfileID == "" {
		message := "Customer profile creation failed"
		if len(parsed.Messages.Message) > 0 {
			message = parsed.Messages.Message[0].Text
		}
		return failure(message)
	}

	return Response{Success: true, CustomerProfileID: parsed.CustomerProfileID}
}

// CreatePaymentProfile attaches an opaque-data payment method to an
// existing customer profile.
func (c *Client) CreatePaymentProfile(ctx context.Context, req PaymentProfileRequest) Response {
	body := map[string]interface{}{
		"createCustomerPaymentProfileRequest": map[string]interface{}{
			"merchantAuthentication": c.auth(),
			"customerProfileId":      req.CustomerProfileID,
			"paymentProfile": map[string]interface{}{
				"payment": map[string]interface{}{
					"opaqueData": map[string]interface{}{
						"dataDescriptor": req.DataDescriptor,
						"dataValue":      req.DataValue,
					},
				},
			},
		},
	}

	var parsed struct {
		PaymentProfileID string      `json:"customerPaymentProfileId"`
		Messages         apiMessages `json:"messages"`
	}
	if err := c.post(ctx, body, &parsed); err != nil {
		logrus.WithError(err).Warn("gateway payment profile create failed")
		return failure(err.Error())
	}

	if parsed.Messages.ResultCode != "Ok" || parsed.PaymentProfileID == "" {
		message := "Payment profile creation failed"
		if len(parsed.Messages.Message) > 0 {
			message = parsed.Messages.Message[0].Text
		}
		return failure(message)
	}

	return Response{
		Success:           true,
		CustomerProfileID: req.CustomerProfileID,
		PaymentProfileID:  parsed.PaymentProfileID,
	}
}

// ChargeProfile runs an auth-capture transaction against a stored
// customer payment profile.
func (c *Client) ChargeProfile(ctx context.Context, req ChargeRequest) Response {
	type order struct {
		InvoiceNumber string `json:"invoiceNumber,omitempty"`
	}
	type paymentProfile struct {
		PaymentProfileID string `json:"paymentProfileId"`
	}
	type profile struct {
		CustomerProfileID string         `json:"customerProfileId"`
		PaymentProfile    paymentProfile `json:"paymentProfile"`
	}
	type transactionRequest struct {
		TransactionType string  `json:"transactionType"`
		Amount          string  `json:"amount"`
		Profile         profile `json:"profile"`
		Order           *order  `json:"order,omitempty"`
	}

	body := map[string]interface{}{
		"createTransactionRequest": map[string]interface{}{
			"merchantAuthentication": c.auth(),
			"transactionRequest": transactionRequest{
				TransactionType: "authCaptureTransaction",
				Amount:          fmt.Sprintf("%.2f", req.Amount),
				Profile: profile{
					CustomerProfileID: req.CustomerProfileID,
					PaymentProfile:    paymentProfile{PaymentProfileID: req.PaymentProfileID},
				},
				Order: func() *order {
					if req.InvoiceNumber == "" {
						return nil
					}
					return &order{InvoiceNumber: req.InvoiceNumber}
				}(),
			},
		},
	}

	var parsed struct {
		TransactionResponse transactionResponse `json:"transactionResponse"`
		Messages            apiMessages         `json:"messages"`
	}
	if err := c.post(ctx, body, &parsed); err != nil {
		logrus.WithError(err).Warn("gateway charge failed")
		return failure(err.Error())
	}

	tr := parsed.TransactionResponse
	if parsed.Messages.ResultCode != "Ok" || tr.ResponseCode != "1" {
		message := "Transaction declined"
		if len(tr.Errors) > 0 {
			message = tr.Errors[0].ErrorText
		} else if len(parsed.Messages.Message) > 0 {
			message = parsed.Messages.Message[0].Text
		}
		return Response{
			Success:       false,
			TransactionID: tr.TransID,
			ResponseCode:  tr.ResponseCode,
			Message:       message,
		}
	}

	message := "This transaction has been approved."
	if len(tr.Messages) > 0 {
		message = tr.Messages[0].Description
	}
	return Response{
		Success:       true,
		TransactionID: tr.TransID,
		ResponseCode:  tr.ResponseCode,
		Message:       message,
	}
}

// CreateSubscription starts an ARB subscription on the requested
// schedule.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) Response {
	length := req.IntervalLength
	if length < 1 {
		length = 1
	}
	unit := req.IntervalUnit
	if unit == "" {
		unit = "months"
	}
	start := req.StartDate
	if start.IsZero() {
		start = time.Now()
	}
	occurrences := req.TotalOccurrences
	if occurrences < 1 {
		occurrences = 9999
	}

	body := map[string]interface{}{
		"ARBCreateSubscriptionRequest": map[string]interface{}{
			"merchantAuthentication": c.auth(),
			"subscription": map[string]interface{}{
				"name": req.Name,
				"paymentSchedule": map[string]interface{}{
					"interval": map[string]interface{}{
						"length": fmt.Sprintf("%d", length),
						"unit":   unit,
					},
					"startDate":        start.Format("2006-01-02"),
					"totalOccurrences": fmt.Sprintf("%d", occurrences),
				},
				"amount": fmt.Sprintf("%.2f", req.Amount),
				"profile": map[string]interface{}{
					"customerProfileId":        req.CustomerProfileID,
					"customerPaymentProfileId": req.PaymentProfileID,
				},
			},
		},
	}

	var parsed struct {
		SubscriptionID string      `json:"subscriptionId"`
		Messages       apiMessages `json:"messages"`
	}
	if err := c.post(ctx, body, &parsed); err != nil {
		logrus.WithError(err).Warn("gateway subscription create failed")
		return failure(err.Error())
	}

	if parsed.Messages.ResultCode != "Ok" || parsed.SubscriptionID == "" {
		message := "Subscription creation failed"
		if len(parsed.Messages.Message) > 0 {
			message = parsed.Messages.Message[0].Text
		}
		return failure(message)
	}

	return Response{Success: true, SubscriptionID: parsed.SubscriptionID}
}

// CancelSubscription cancels an active ARB subscription.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) Response {
	body := map[string]interface{}{
		"ARBCancelSubscriptionRequest": map[string]interface{}{
			"merchantAuthentication": c.auth(),
			"subscriptionId":         subscriptionID,
		},
	}

	var parsed struct {
		Messages apiMessages `json:"messages"`
	}
	if err := c.post(ctx, body, &parsed); err != nil {
		logrus.WithError(err).Warn("gateway subscription cancel failed")
		return failure(err.Error())
	}

	if parsed.Messages.ResultCode != "Ok" {
		message := "Subscription cancellation failed"
		if len(parsed.Messages.Message) > 0 {
			message = parsed.Messages.Message[0].Text
		}
		return failure(message)
	}

	return Response{Success: true, SubscriptionID: subscriptionID}
}

// GetSubscriptionStatus reports the gateway-side status of an ARB
// subscription (active, suspended, canceled, expired or terminated).
func (c *Client) GetSubscriptionStatus(ctx context.Context, subscriptionID string) Response {
	body := map[string]interface{}{
		"ARBGetSubscriptionStatusRequest": map[string]interface{}{
			"merchantAuthentication": c.auth(),
			"subscriptionId":         subscriptionID,
		},
	}

	var parsed struct {
		Status   string      `json:"status"`
		Messages apiMessages `json:"messages"`
	}
	if err := c.post(ctx, body, &parsed); err != nil {
		logrus.WithError(err).Warn("gateway subscription status failed")
		return failure(err.Error())
	}

	if parsed.Messages.ResultCode != "Ok" {
		message := "Subscription status lookup failed"
		if len(parsed.Messages.Message) > 0 {
			message = parsed.Messages.Message[0].Text
		}
		return failure(message)
	}

	return Response{Success: true, SubscriptionID: subscriptionID, Message: parsed.Status}
}
