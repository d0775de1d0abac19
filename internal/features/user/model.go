package user

import (
	"github.com/courseflow/video-server-go/pkg/types"
)

// User is the learner identity record. Account management lives in the
// identity service; this server only reads users to resolve request identity.
type User struct {
	types.BaseModel

	Email    string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName string         `gorm:"type:varchar(120);not null;column:full_name" json:"fullName"`
	UserType types.UserType `gorm:"type:varchar(20);not null;default:'student';column:user_type" json:"userType"`
	Active   bool           `gorm:"type:boolean;not null;default:true;column:is_active" json:"isActive"`
}

// TableName overrides the default table name.
func (User) TableName() string { return "users" }
