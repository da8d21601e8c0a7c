package models

// FulfillmentPayload is the body the oracle posts to the lottery's callback.
// Words travel as base-10 strings because they are 256-bit values.
type FulfillmentPayload struct {
	RequestID   RequestID `json:"requestId" binding:"required"`
	RandomWords []string  `json:"randomWords" binding:"required"`
}
