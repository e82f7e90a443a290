package models

// Requests for signal HTTP endpoints. Defined in domain for consistency and reuse.

type SignalsRequest struct {
	Refresh   bool   `query:"refresh" json:"refresh"`
	Symbol    string `query:"symbol" json:"symbol" validate:"omitempty,max=32,symbol"`
	Direction string `query:"direction" json:"direction" validate:"omitempty,oneof=BUY SELL"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
