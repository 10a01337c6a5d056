package models

type OrderItem struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	OrderID  uint   `gorm:"not null;index" json:"order_id"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	Quantity int    `gorm:"not null" json:"quantity"`
	Notes    string `gorm:"type:text" json:"notes,omitempty"`
}
