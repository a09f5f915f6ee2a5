package request

// CreateAPIKey is the request body for issuing a new API key.
type CreateAPIKey struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}
