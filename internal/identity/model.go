// README: User and rider-status definitions mirrored from the user service contract.
package identity

import "takeout/internal/types"

type UserType string

const (
	TypeCustomer UserType = "customer"
	TypeMerchant UserType = "merchant"
	TypeRider    UserType = "rider"
)

type RiderStatus string

const (
	StatusIdle       RiderStatus = "idle"
	StatusDelivering RiderStatus = "delivering"
	StatusOffDuty    RiderStatus = "off_duty"
)

// ValidRiderStatus reports whether s is one of the three recognized values.
func ValidRiderStatus(s RiderStatus) bool {
	switch s {
	case StatusIdle, StatusDelivering, StatusOffDuty:
		return true
	}
	return false
}

// UserInfo is the user record as the user service returns it. Address is
// required for merchants; Status is meaningful only for riders.
type UserInfo struct {
	UserID        types.ID    `json:"userID"`
	Name          string      `json:"name"`
	ContactNumber string      `json:"contactNumber"`
	UserType      UserType    `json:"userType"`
	Address       string      `json:"address"`
	Status        RiderStatus `json:"status"`
	CreateTime    int64       `json:"createTime"`
}
