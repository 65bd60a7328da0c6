package model

// User is a profile owned by the external authentication system. The
// conversation service only reads it.
type User struct {
	ID         string `json:"id" bson:"_id" gorm:"primaryKey"`
	Name       string `json:"name" bson:"name"`
	Email      string `json:"email" bson:"email"`
	Phone      string `json:"-" bson:"phone"`
	ProfilePic string `json:"profilePic" bson:"profile_pic" gorm:"column:profile_pic"`
	Password   string `json:"-" bson:"password"`
}

// UserRef is the redacted user shape embedded in API responses. It has no
// password or phone field, so neither can leak through serialization.
type UserRef struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Ref returns the redacted view of u.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, ProfilePic: u.ProfilePic}
}
