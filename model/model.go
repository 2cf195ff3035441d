package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pending edit actions, persisted on the user so a multi-step flow
// survives a restart. The value mirrors the callback action codes.
const (
	ActionHome = iota
	ActionShow
	ActionSetOrigin
	ActionSetDest
	ActionSetDate
	ActionSetPrice
	ActionSetDuration
	ActionSetChanges
	ActionSetNotify
	ActionQuery
	ActionDelete
)

// Notification frequencies for a connection.
const (
	NotifyNone = iota
	NotifyWeekly
	NotifyDaily
)

type User struct {
	ID        int64 `gorm:"primaryKey"` // Telegram Chat ID
	CreatedAt time.Time
	UpdatedAt time.Time

	FirstName string
	LastName  string
	Username  string
	Title     string

	// Incremented on every interaction
	Counter int

	// Which edit step is waiting for the user's next text message.
	// PendingConnID is -1 while a new connection is being created.
	PendingAction int   `gorm:"default:0"`
	PendingConnID int64 `gorm:"default:0"`

	Connections []Connection `gorm:"foreignKey:UserID"`
}

type Connection struct {
	ID     int64 `gorm:"primaryKey"`
	UserID int64 `gorm:"index"`

	Origin     string
	OriginName string
	Dest       string
	DestName   string
	Date       time.Time

	// Filter bounds for the on-demand query
	MaxPrice    decimal.Decimal `gorm:"type:numeric;default:200"`
	MaxDuration int             `gorm:"default:3000"` // minutes
	MaxChanges  int             `gorm:"default:10"`

	Notifications int `gorm:"default:2"`
}

// Watch is a batch-monitored route. ChatID 0 marks a watch whose owner
// became unreachable; it keeps its snapshots but is never notified.
type Watch struct {
	ID     int64 `gorm:"primaryKey"`
	ChatID int64 `gorm:"index"`

	Origin     string
	OriginName string
	Dest       string
	DestName   string
	Date       time.Time

	// JSON-encoded arrays of five counts each, one per reference date
	// slot: requested day, day-1, day+1, week-1, week+1. Slot order is
	// fixed and shared with the snapshot arrays.
	Cheapest       string `gorm:"default:'[0,0,0,0,0]'"`
	SecondCheapest string `gorm:"default:'[0,0,0,0,0]'"`
}
