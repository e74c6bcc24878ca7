package registration

// Status 报名状态
type Status string

const (
	StatusPending   Status = "pending"   // 待支付确认
	StatusActive    Status = "active"    // 已生效
	StatusCancelled Status = "cancelled" // 已取消
)

// CheckInStatus 签到状态
type CheckInStatus string

const (
	CheckInNone CheckInStatus = "not_checked_in" // 未签到
	CheckInDone CheckInStatus = "checked_in"     // 已签到
)

// IsActive 检查报名是否已生效
func (r *Registration) IsActive() bool {
	return r.Status == string(StatusActive)
}

// IsCancelled 检查报名是否已取消
func (r *Registration) IsCancelled() bool {
	return r.Status == string(StatusCancelled)
}
