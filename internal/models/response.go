package models

// WebhookResponse is returned when an inbound webhook has been accepted.
type WebhookResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse carries a single error message.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JobResponse reports the outcome of a scheduled job invocation.
type JobResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Count      int    `json:"count"`
}

// Accepted creates a successful webhook response.
func Accepted() WebhookResponse {
	return WebhookResponse{Success: true}
}

// Error creates an error response with a message.
func Error(message string) ErrorResponse {
	return ErrorResponse{Success: false, Error: message}
}
