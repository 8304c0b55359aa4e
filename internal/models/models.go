package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Lead statuses. CLOSED is terminal.
const (
	LeadStatusNew       = "NEW"
	LeadStatusContacted = "CONTACTED"
	LeadStatusProposal  = "PROPOSAL"
	LeadStatusClosed    = "CLOSED"
)

// Lead activity types.
const (
	ActivityCreated          = "CREATED"
	ActivityStatusChange     = "STATUS_CHANGE"
	ActivityAssignmentChange = "ASSIGNMENT_CHANGE"
	ActivityNote             = "NOTE"
	ActivityConversion       = "CONVERSION"
)

// Sale statuses.
const (
	SaleStatusPending   = "PENDING"
	SaleStatusActive    = "ACTIVE"
	SaleStatusCompleted = "COMPLETED"
	SaleStatusCancelled = "CANCELLED"
)

// Invoice statuses.
const (
	InvoiceStatusUnpaid  = "UNPAID"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusOverdue = "OVERDUE"
)

// Payment transaction types and statuses.
const (
	TransactionOneTime   = "ONE_TIME"
	TransactionRecurring = "RECURRING"
	TransactionRefund    = "REFUND"

	TransactionStatusPending  = "PENDING"
	TransactionStatusSuccess  = "SUCCESS"
	TransactionStatusFailed   = "FAILED"
	TransactionStatusRefunded = "REFUNDED"
)

// User roles, ordered lowest to highest privilege.
const (
	RoleUpsellAgent    = "UPSELL_AGENT"
	RoleFrontsellAgent = "FRONTSELL_AGENT"
	RoleProjectManager = "PROJECT_MANAGER"
	RoleSalesManager   = "SALES_MANAGER"
	RoleAdmin          = "ADMIN"
	RoleOwner          = "OWNER"
)

var roleRank = map[string]int{
	RoleUpsellAgent:    0,
	RoleFrontsellAgent: 1,
	RoleProjectManager: 2,
	RoleSalesManager:   3,
	RoleAdmin:          4,
	RoleOwner:          5,
}

// RoleLevel returns the privilege rank of a role, or -1 for unknown roles.
func RoleLevel(role string) int {
	if rank, ok := roleRank[role]; ok {
		return rank
	}
	return -1
}

// HasMinimumRole reports whether role meets or exceeds required in the
// role hierarchy. Unknown roles never qualify.
func HasMinimumRole(role, required string) bool {
	level := RoleLevel(role)
	return level >= 0 && level >= RoleLevel(required)
}

// Invitation statuses.
const (
	InvitationPending   = "PENDING"
	InvitationAccepted  = "ACCEPTED"
	InvitationExpired   = "EXPIRED"
	InvitationCancelled = "CANCELLED"
)

type Organization struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan" gorm:"default:'FREE'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Email               string     `json:"email" gorm:"uniqueIndex"`
	Password            string     `json:"-"`
	Name                string     `json:"name"`
	Role                string     `json:"role" gorm:"default:'FRONTSELL_AGENT'"`
	Active              bool       `json:"active" gorm:"default:true"`
	AvatarURL           string     `json:"avatar_url"`
	JobTitle            string     `json:"job_title"`
	Phone               string     `json:"phone"`
	PasswordResetToken  string     `json:"-"`
	PasswordResetExpiry *time.Time `json:"-"`
	RefreshTokenHash    string     `json:"-"`
	OrganizationID      uint       `json:"organization_id" gorm:"index"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TokenBlacklist represents revoked JWT tokens.
type TokenBlacklist struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;not null"`
	UserID    uint      `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason" gorm:"default:'logout'"`
	CreatedAt time.Time `json:"created_at"`
}

type Invitation struct {
	ID             uint         `json:"id" gorm:"primaryKey"`
	OrganizationID uint         `json:"organization_id" gorm:"index"`
	Organization   Organization `json:"organization" gorm:"foreignKey:OrganizationID"`
	Email          string       `json:"email" gorm:"index"`
	Role           string       `json:"role" gorm:"default:'FRONTSELL_AGENT'"`
	Token          string       `json:"-" gorm:"uniqueIndex"`
	InvitedBy      uint         `json:"invited_by"`
	Inviter        User         `json:"inviter" gorm:"foreignKey:InvitedBy"`
	Status         string       `json:"status" gorm:"default:'PENDING';index"`
	ExpiresAt      time.Time    `json:"expires_at"`
	AcceptedAt     *time.Time   `json:"accepted_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type Brand struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	LogoURL        string    `json:"logo_url"`
	Settings       JSON      `json:"settings,omitempty" gorm:"type:json"`
	OrganizationID uint      `json:"organization_id" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Client struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Email          string    `json:"email" gorm:"index"`
	Password       string    `json:"-"`
	CompanyName    string    `json:"company_name"`
	ContactName    string    `json:"contact_name"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	Notes          string    `json:"notes"`
	BrandID        uint      `json:"brand_id" gorm:"index"`
	Brand          *Brand    `json:"brand,omitempty" gorm:"foreignKey:BrandID"`
	OrganizationID uint      `json:"organization_id" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Lead struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	Title             string    `json:"title"`
	Status            string    `json:"status" gorm:"default:'NEW';index"`
	Source            string    `json:"source" gorm:"index"`
	Data              JSON      `json:"data,omitempty" gorm:"type:json"`
	BrandID           uint      `json:"brand_id" gorm:"index"`
	Brand             *Brand    `json:"brand,omitempty" gorm:"foreignKey:BrandID"`
	OrganizationID    uint      `json:"organization_id" gorm:"index"`
	AssignedToID      *uint     `json:"assigned_to_id" gorm:"index"`
	AssignedTo        *User     `json:"assigned_to,omitempty" gorm:"foreignKey:AssignedToID"`
	ConvertedClientID *uint     `json:"converted_client_id"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LeadActivity is the append-only audit trail of a lead. Rows are never
// updated; they are only removed together with the parent lead.
type LeadActivity struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Type      string    `json:"type"`
	Data      JSON      `json:"data,omitempty" gorm:"type:json"`
	LeadID    uint      `json:"lead_id" gorm:"index"`
	UserID    uint      `json:"user_id"`
	User      *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

type Sale struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	TotalAmount       float64   `json:"total_amount" gorm:"type:decimal(10,2)"`
	Currency          string    `json:"currency" gorm:"default:'USD'"`
	Status            string    `json:"status" gorm:"default:'PENDING';index"`
	Description       string    `json:"description"`
	ClientID          uint      `json:"client_id" gorm:"index"`
	Client            *Client   `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	BrandID           uint      `json:"brand_id" gorm:"index"`
	OrganizationID    uint      `json:"organization_id" gorm:"index"`
	CustomerProfileID string    `json:"customer_profile_id"`
	PaymentProfileID  string    `json:"payment_profile_id"`
	SubscriptionID    string    `json:"subscription_id"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Invoice struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	InvoiceNumber string    `json:"invoice_number" gorm:"uniqueIndex"`
	Amount        float64   `json:"amount" gorm:"type:decimal(10,2)"`
	DueDate       time.Time `json:"due_date"`
	Status        string    `json:"status" gorm:"default:'UNPAID';index"`
	Notes         string    `json:"notes"`
	SaleID        uint      `json:"sale_id" gorm:"index"`
	Sale          *Sale     `json:"sale,omitempty" gorm:"foreignKey:SaleID"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PaymentTransaction records every gateway charge attempt, successful or
// not. Status only moves forward via webhook reconciliation.
type PaymentTransaction struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TransactionID   string    `json:"transaction_id" gorm:"uniqueIndex"`
	Type            string    `json:"type"`
	Amount          float64   `json:"amount" gorm:"type:decimal(10,2)"`
	Status          string    `json:"status" gorm:"default:'PENDING';index"`
	ResponseCode    string    `json:"response_code"`
	ResponseMessage string    `json:"response_message"`
	SaleID          uint      `json:"sale_id" gorm:"index"`
	Sale            *Sale     `json:"sale,omitempty" gorm:"foreignKey:SaleID"`
	InvoiceID       *uint     `json:"invoice_id" gorm:"index"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

// JSON is a schema-less payload stored in a JSON column.
type JSON map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("cannot scan into JSON")
	}
}

// All returns every model registered for auto-migration, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Organization{},
		&User{},
		&TokenBlacklist{},
		&Invitation{},
		&Brand{},
		&Client{},
		&Lead{},
		&LeadActivity{},
		&Sale{},
		&Invoice{},
		&PaymentTransaction{},
	}
}
