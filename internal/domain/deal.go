package domain

import (
	"errors"
	"time"
)

var ErrDealNotFound = errors.New("deal not found")

// Deal is a row of the deals list
type Deal struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	DateCreate string `json:"dateCreate"`
	StageID    string `json:"stageId"`
	StageName  string `json:"stageName,omitempty"`
	CategoryID int    `json:"categoryId"`
}

// DealDetails is the full deal record
type DealDetails struct {
	ID                int     `json:"id"`
	Title             string  `json:"title"`
	DateCreate        string  `json:"dateCreate"`
	DateModify        string  `json:"dateModify"`
	StageID           string  `json:"stageId"`
	StageName         string  `json:"stageName,omitempty"`
	CategoryID        int     `json:"categoryId"`
	Opportunity       float64 `json:"opportunity"`
	CurrencyID        string  `json:"currencyId"`
	AssignedByID      int     `json:"assignedById"`
	ContactID         *int    `json:"contactId,omitempty"`
	CompanyID         *int    `json:"companyId,omitempty"`
	Comments          string  `json:"comments,omitempty"`
	CloseDate         string  `json:"closeDate,omitempty"`
	Opened            bool    `json:"opened"`
	Closed            bool    `json:"closed"`
	TypeID            string  `json:"typeId"`
	Probability       float64 `json:"probability"`
	SourceID          string  `json:"sourceId,omitempty"`
	SourceDescription string  `json:"sourceDescription,omitempty"`
}

// DealsPage is one page of the deals list. Next is nil on the last page.
type DealsPage struct {
	Items []Deal `json:"items"`
	Next  *int   `json:"next"`
}

// ProductRow is a product line attached to a new deal
type ProductRow struct {
	ProductID int     `json:"productId"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
}

// CreateDeal is the body of create and update calls. Update sends it as a partial document.
type CreateDeal struct {
	Title        string       `json:"title,omitempty"`
	StageID      string       `json:"stageId,omitempty"`
	Opportunity  *float64     `json:"opportunity,omitempty"`
	CurrencyID   string       `json:"currencyId,omitempty"`
	AssignedByID *int         `json:"assignedById,omitempty"`
	ContactID    *int         `json:"contactId,omitempty"`
	CompanyID    *int         `json:"companyId,omitempty"`
	Comments     string       `json:"comments,omitempty"`
	CloseDate    string       `json:"closeDate,omitempty"`
	CategoryID   *int         `json:"categoryId,omitempty"`
	ProductRows  []ProductRow `json:"productRows,omitempty"`
}

// CreatedDeal is returned by create and repeat
type CreatedDeal struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	StageID      string   `json:"stageId"`
	Opportunity  *float64 `json:"opportunity,omitempty"`
	CurrencyID   string   `json:"currencyId,omitempty"`
	AssignedByID *int     `json:"assignedById,omitempty"`
	ContactID    *int     `json:"contactId,omitempty"`
	CompanyID    *int     `json:"companyId,omitempty"`
	Comments     string   `json:"comments,omitempty"`
	CloseDate    string   `json:"closeDate,omitempty"`
	CategoryID   int      `json:"categoryId"`
}

// DealEventType names a deal mutation pushed to the live feed
type DealEventType string

const (
	DealCreated  DealEventType = "deal_created"
	DealUpdated  DealEventType = "deal_updated"
	DealDeleted  DealEventType = "deal_deleted"
	DealRepeated DealEventType = "deal_repeated"
)

// DealEvent is broadcast to dashboard clients after a successful mutation
type DealEvent struct {
	Type    DealEventType `json:"type"`
	DealID  int           `json:"dealId"`
	ActorID string        `json:"actorId,omitempty"`
	At      time.Time     `json:"at"`
}
