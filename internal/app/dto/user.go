package dto

import (
	"time"

	domainuser "kisaanconnect/internal/domain/user"
)

type Location struct {
	State       string `json:"state"`
	District    string `json:"district"`
	VillageTown string `json:"villageTown"`
	PinCode     string `json:"pinCode"`
}

type UserProfile struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	PhoneNumber    string    `json:"phoneNumber"`
	Email          string    `json:"email,omitempty"`
	Location       Location  `json:"location"`
	ProfilePicture string    `json:"profilePicture"`
	Roles          []string  `json:"roles"`
	IsAdmin        bool      `json:"isAdmin"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type AuthResponse struct {
	Success bool        `json:"success"`
	User    UserProfile `json:"user"`
	Token   string      `json:"token"`
}

func MapUserProfile(user *domainuser.User) UserProfile {
	if user == nil {
		return UserProfile{}
	}
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	return UserProfile{
		ID:          string(user.ID),
		FullName:    user.Name,
		PhoneNumber: user.Phone,
		Email:       user.Email,
		Location: Location{
			State:       user.Location.State,
			District:    user.Location.District,
			VillageTown: user.Location.VillageTown,
			PinCode:     user.Location.PinCode,
		},
		ProfilePicture: user.ProfilePicture,
		Roles:          roles,
		IsAdmin:        user.IsAdmin(),
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}

func NewAuthResponse(user *domainuser.User, token string) AuthResponse {
	return AuthResponse{
		Success: true,
		User:    MapUserProfile(user),
		Token:   token,
	}
}
