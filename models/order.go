package models

import (
	"fmt"
	"time"
)

type Order struct {
	ID                  uint        `gorm:"primaryKey" json:"id"`
	TableNumber         string      `gorm:"type:varchar(50)" json:"table_number,omitempty"`
	CustomerName        string      `gorm:"type:varchar(100)" json:"customer_name,omitempty"`
	Status              Status      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Priority            Priority    `gorm:"type:varchar(10);not null;default:'normal'" json:"priority"`
	PrepMinutes         *int        `json:"prep_minutes,omitempty"`
	SpecialInstructions string      `gorm:"type:text" json:"special_instructions,omitempty"`
	StartCookingTime    *time.Time  `json:"start_cooking_time,omitempty"`
	FinishCookingTime   *time.Time  `json:"finish_cooking_time,omitempty"`
	CreatedAt           time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"not null;index" json:"updated_at"`
	OrderItems          []OrderItem `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"order_items"`
}

// Label -> nomor meja, kalau kosong pakai nama customer
func (o *Order) Label() string {
	if o.TableNumber != "" {
		return "Table " + o.TableNumber
	}
	if o.CustomerName != "" {
		return o.CustomerName
	}
	return fmt.Sprintf("Order #%d", o.ID)
}

// HasEstimate reports whether the order carries a usable preparation estimate.
func (o *Order) HasEstimate() bool {
	return o.PrepMinutes != nil && *o.PrepMinutes > 0
}

// Clone returns a deep copy so callers never share item slices or pointers with the store.
func (o Order) Clone() Order {
	c := o
	if o.OrderItems != nil {
		c.OrderItems = make([]OrderItem, len(o.OrderItems))
		copy(c.OrderItems, o.OrderItems)
	}
	if o.PrepMinutes != nil {
		m := *o.PrepMinutes
		c.PrepMinutes = &m
	}
	if o.StartCookingTime != nil {
		t := *o.StartCookingTime
		c.StartCookingTime = &t
	}
	if o.FinishCookingTime != nil {
		t := *o.FinishCookingTime
		c.FinishCookingTime = &t
	}
	return c
}
