package request

// CreateDomain is the request body for registering a domain.
type CreateDomain struct {
	Domain   string `json:"domain" validate:"required,fqdn"`
	OriginIP string `json:"origin_ip" validate:"required,ip"`
}

// UpdateDomain is the request body for updating a domain.
type UpdateDomain struct {
	OriginIP *string `json:"origin_ip,omitempty" validate:"omitempty,ip"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=enabled disabled"`
}
