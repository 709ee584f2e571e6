package domain

// User is the profile of the signed-in account as returned by the remote API.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// CustomerProfile is the customer record of the signed-in account. Only the
// delivery address is used.
type CustomerProfile struct {
	Address string `json:"address"`
}
