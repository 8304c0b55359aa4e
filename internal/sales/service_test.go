package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sentra-backend/internal/database"
	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
	"sentra-backend/internal/payments"
)

type fakeGateway struct {
	chargeResp   payments.Response
	subResp      payments.Response
	cancelResp   payments.Response
	customerResp payments.Response
	paymentResp  payments.Response
	statusResp   payments.Response

	lastCharge   payments.ChargeRequest
	lastSub      payments.SubscriptionRequest
	lastCustomer payments.CustomerProfileRequest
	lastPayment  payments.PaymentProfileRequest
	cancelledID  string
	statusID     string
}

func (f *fakeGateway) CreateCustomerProfile(_ context.Context, req payments.CustomerProfileRequest) payments.Response {
	f.lastCustomer = req
	return f.customerResp
}

func (f *fakeGateway) CreatePaymentProfile(_ context.Context, req payments.PaymentProfileRequest) payments.Response {
	f.lastPayment = req
	return f.paymentResp
}

func (f *fakeGateway) GetSubscriptionStatus(_ context.Context, subscriptionID string) payments.Response {
	f.statusID = subscriptionID
	return f.statusResp
}

func (f *fakeGateway) ChargeProfile(_ context.Context, req payments.ChargeRequest) payments.Response {
	f.lastCharge = req
	return f.chargeResp
}

func (f *fakeGateway) CreateSubscription(_ context.Context, req payments.SubscriptionRequest) payments.Response {
	f.lastSub = req
	return f.subResp
}

func (f *fakeGateway) CancelSubscription(_ context.Context, subscriptionID string) payments.Response {
	f.cancelledID = subscriptionID
	return f.cancelResp
}

type fixture struct {
	db     *gorm.DB
	org    models.Organization
	client models.Client
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenTest()
	require.NoError(t, err)

	f := &fixture{db: db}
	f.org = models.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&f.org).Error)

	f.client = models.Client{Email: "buyer@example.com", OrganizationID: f.org.ID}
	require.NoError(t, db.Create(&f.client).Error)
	return f
}

func (f *fixture) newSale(t *testing.T, withProfiles bool) *models.Sale {
	t.Helper()
	sale, err := Create(f.db, f.org.ID, CreateInput{
		ClientID:    f.client.ID,
		TotalAmount: 750,
		Description: "Annual retainer",
	})
	require.NoError(t, err)
	if withProfiles {
		sale, err = SetPaymentProfiles(f.db, sale.ID, f.org.ID, ProfileInput{
			CustomerProfileID: "cust-1",
			PaymentProfileID:  "pay-1",
		})
		require.NoError(t, err)
	}
	return sale
}

func TestCreateSaleDefaults(t *testing.T) {
	f := setup(t)

	sale := f.newSale(t, false)
	assert.Equal(t, "USD", sale.Currency)
	assert.Equal(t, models.SaleStatusPending, sale.Status)
	assert.Equal(t, f.client.ID, sale.ClientID)
	assert.Equal(t, f.org.ID, sale.OrganizationID)
}

func TestCreateSaleRejectsForeignClient(t *testing.T) {
	f := setup(t)

	other := models.Organization{Name: "Rival"}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := Create(f.db, other.ID, CreateInput{
		ClientID:    f.client.ID,
		TotalAmount: 100,
	})
	require.Error(t, err)
	assert.Equal(t, "Client belongs to another organization", apperrors.AsAppError(err).Message)
}

func TestChargeSaleSuccess(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{chargeResp: payments.Response{
		Success:       true,
		TransactionID: "60100",
		ResponseCode:  "1",
	}}

	txn, err := Charge(context.Background(), f.db, gw, sale.ID, f.org.ID, ChargeInput{})
	require.NoError(t, err)
	assert.Equal(t, "60100", txn.TransactionID)
	assert.Equal(t, models.TransactionStatusSuccess, txn.Status)

	// Amount defaults to the sale total.
	assert.Equal(t, 750.0, gw.lastCharge.Amount)
	assert.Equal(t, "cust-1", gw.lastCharge.CustomerProfileID)
}

func TestChargeSaleWithoutProfiles(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, false)
	gw := &fakeGateway{}

	_, err := Charge(context.Background(), f.db, gw, sale.ID, f.org.ID, ChargeInput{})
	require.Error(t, err)
	assert.Equal(t, "Sale does not have payment profiles configured", apperrors.AsAppError(err).Message)
}

func TestChargeSaleDeclineRecordsFailedTransaction(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{chargeResp: payments.Response{
		Success: false,
		Message: "Declined due to fraud detection",
	}}

	_, err := Charge(context.Background(), f.db, gw, sale.ID, f.org.ID, ChargeInput{Amount: 50})
	require.Error(t, err)
	assert.Equal(t, "Payment failed: Declined due to fraud detection", apperrors.AsAppError(err).Message)

	txns, txErr := Transactions(f.db, sale.ID, f.org.ID)
	require.NoError(t, txErr)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionStatusFailed, txns[0].Status)
	assert.Equal(t, 50.0, txns[0].Amount)
}

func TestSubscribeLifecycle(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{
		subResp:    payments.Response{Success: true, SubscriptionID: "sub-9000"},
		cancelResp: payments.Response{Success: true},
	}

	sale, err := Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{IntervalLength: 1})
	require.NoError(t, err)
	assert.Equal(t, "sub-9000", sale.SubscriptionID)
	assert.Equal(t, models.SaleStatusActive, sale.Status)
	assert.Equal(t, 750.0, gw.lastSub.Amount)

	// A RECURRING ledger row tracks the subscription.
	txns, err := Transactions(f.db, sale.ID, f.org.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionRecurring, txns[0].Type)
	assert.Equal(t, "sub_sub-9000", txns[0].TransactionID)

	// Second subscription is rejected.
	_, err = Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{})
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
	assert.Equal(t, "Sale already has an active subscription", appErr.Message)

	sale, err = CancelSubscription(context.Background(), f.db, gw, sale.ID, f.org.ID)
	require.NoError(t, err)
	assert.Empty(t, sale.SubscriptionID)
	assert.Equal(t, models.SaleStatusCancelled, sale.Status)
	assert.Equal(t, "sub-9000", gw.cancelledID)

	// Cancelling again is rejected.
	_, err = CancelSubscription(context.Background(), f.db, gw, sale.ID, f.org.ID)
	require.Error(t, err)
	appErr = apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
	assert.Equal(t, "Sale does not have an active subscription", appErr.Message)
}

func TestSubscribeSchedulePassthrough(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{subResp: payments.Response{Success: true, SubscriptionID: "sub-14"}}

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	_, err := Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{
		Amount:           25,
		IntervalLength:   14,
		IntervalUnit:     "days",
		StartDate:        &start,
		TotalOccurrences: 12,
	})
	require.NoError(t, err)

	assert.Equal(t, 25.0, gw.lastSub.Amount)
	assert.Equal(t, 14, gw.lastSub.IntervalLength)
	assert.Equal(t, "days", gw.lastSub.IntervalUnit)
	assert.Equal(t, start, gw.lastSub.StartDate)
	assert.Equal(t, 12, gw.lastSub.TotalOccurrences)
}

func TestSubscribeRejectsUnknownIntervalUnit(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{}

	_, err := Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{
		IntervalLength: 1,
		IntervalUnit:   "fortnights",
	})
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
	assert.Equal(t, "Invalid interval unit: fortnights", appErr.Message)
	assert.Empty(t, gw.lastSub.CustomerProfileID)
}

func TestSubscribeWithoutProfiles(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, false)
	gw := &fakeGateway{}

	_, err := Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{})
	require.Error(t, err)
	assert.Equal(t, "Sale does not have payment profiles configured", apperrors.AsAppError(err).Message)
}

func TestSubscribeGatewayFailure(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{subResp: payments.Response{Success: false, Message: "Duplicate subscription"}}

	_, err := Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{})
	require.Error(t, err)
	assert.Equal(t, "Payment failed: Duplicate subscription", apperrors.AsAppError(err).Message)

	var reloaded models.Sale
	require.NoError(t, f.db.First(&reloaded, sale.ID).Error)
	assert.Empty(t, reloaded.SubscriptionID)
	assert.Equal(t, models.SaleStatusPending, reloaded.Status)
}

func TestDeleteSaleGuards(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{subResp: payments.Response{Success: true, SubscriptionID: "sub-1"}}

	_, err := Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{})
	require.NoError(t, err)

	err = Delete(f.db, sale.ID, f.org.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.AsAppError(err).Code)

	gw.cancelResp = payments.Response{Success: true}
	_, err = CancelSubscription(context.Background(), f.db, gw, sale.ID, f.org.ID)
	require.NoError(t, err)

	require.NoError(t, Delete(f.db, sale.ID, f.org.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.PaymentTransaction{}).Where("sale_id = ?", sale.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestSetupPaymentProfiles(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, false)
	gw := &fakeGateway{
		customerResp: payments.Response{Success: true, CustomerProfileID: "cust-500"},
		paymentResp:  payments.Response{Success: true, CustomerProfileID: "cust-500", PaymentProfileID: "pay-501"},
	}

	sale, err := SetupPaymentProfiles(context.Background(), f.db, gw, sale.ID, f.org.ID, SetupProfilesInput{
		Email:          "buyer@example.com",
		DataDescriptor: "COMMON.ACCEPT.INAPP.PAYMENT",
		DataValue:      "opaque-token",
	})
	require.NoError(t, err)
	assert.Equal(t, "cust-500", sale.CustomerProfileID)
	assert.Equal(t, "pay-501", sale.PaymentProfileID)
	assert.Equal(t, "buyer@example.com", gw.lastCustomer.Email)
	assert.Equal(t, "cust-500", gw.lastPayment.CustomerProfileID)
	assert.Equal(t, "opaque-token", gw.lastPayment.DataValue)
}

func TestSetupPaymentProfilesGatewayFailure(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, false)
	gw := &fakeGateway{
		customerResp: payments.Response{Success: false, Message: "Duplicate profile"},
	}

	_, err := SetupPaymentProfiles(context.Background(), f.db, gw, sale.ID, f.org.ID, SetupProfilesInput{
		Email:          "buyer@example.com",
		DataDescriptor: "COMMON.ACCEPT.INAPP.PAYMENT",
		DataValue:      "opaque-token",
	})
	require.Error(t, err)
	assert.Equal(t, "Payment failed: Duplicate profile", apperrors.AsAppError(err).Message)

	var reloaded models.Sale
	require.NoError(t, f.db.First(&reloaded, sale.ID).Error)
	assert.Empty(t, reloaded.CustomerProfileID)
}

func TestSubscriptionStatus(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, true)
	gw := &fakeGateway{
		subResp:    payments.Response{Success: true, SubscriptionID: "sub-7"},
		statusResp: payments.Response{Success: true, Message: "active"},
	}

	// No subscription yet.
	_, err := SubscriptionStatus(context.Background(), f.db, gw, sale.ID, f.org.ID)
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
	assert.Equal(t, "Sale does not have an active subscription", appErr.Message)

	_, err = Subscribe(context.Background(), f.db, gw, sale.ID, f.org.ID, SubscribeInput{})
	require.NoError(t, err)

	status, err := SubscriptionStatus(context.Background(), f.db, gw, sale.ID, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", status)
	assert.Equal(t, "sub-7", gw.statusID)
}

func TestDeleteSaleWithInvoices(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, false)

	invoice := models.Invoice{
		InvoiceNumber: "INV-2026-0001",
		Amount:        750,
		Status:        models.InvoiceStatusUnpaid,
		DueDate:       time.Now().Add(24 * time.Hour),
		SaleID:        sale.ID,
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	err := Delete(f.db, sale.ID, f.org.ID)
	require.Error(t, err)
	assert.Equal(t, "Sale has invoices and cannot be deleted", apperrors.AsAppError(err).Message)

	require.NoError(t, f.db.Delete(&invoice).Error)
	require.NoError(t, Delete(f.db, sale.ID, f.org.ID))
}

func TestSaleTenantIsolation(t *testing.T) {
	f := setup(t)
	sale := f.newSale(t, false)

	other := models.Organization{Name: "Rival"}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := Get(f.db, sale.ID, other.ID)
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeForbidden, appErr.Code)
	assert.Equal(t, "Sale belongs to another organization", appErr.Message)
}
