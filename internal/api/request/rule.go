package request

// CreateRule is the request body for creating a WAF rule.
type CreateRule struct {
	Name        string  `json:"name" validate:"required,min=1,max=128"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
	Content     string  `json:"content" validate:"required"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// UpdateRule is the request body for updating a WAF rule. All fields are
// optional; absent fields are left unchanged.
type UpdateRule struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=128"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
	Content     *string `json:"content,omitempty" validate:"omitempty,min=1"`
	IsActive    *bool   `json:"is_active,omitempty"`
}
