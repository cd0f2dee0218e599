package models

// User is the subset of an account that the messaging core reads. Accounts
// are owned elsewhere; this service never writes them.
type User struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"` // "student" or "alumni"
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// PublicUser is what one participant may see about the other.
type PublicUser struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:             u.ID,
		Name:           u.Name,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
	}
}
