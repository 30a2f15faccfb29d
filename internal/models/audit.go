package models

import "time"

// Действия, попадающие в журнал аудита.
const (
	ActionRegister            = "register"
	ActionLogin               = "login"
	ActionFailedLogin         = "failed_login"
	ActionLockedAccountAccess = "locked_account_access_attempt"
	ActionTokenRefresh        = "token_refresh"
	ActionLogout              = "logout"
	ActionTokenRevoke         = "token_revoke"
	ActionForgotPassword      = "forgot_password"
	ActionResetPassword       = "reset_password"
	ActionCreateUser          = "create_user"
	ActionUpdateUser          = "update_user"
	ActionDeleteUser          = "delete_user"
	ActionChangeRole          = "change_role"
	ActionAdminPasswordReset  = "admin_password_reset"
	ActionCreatePlan          = "create_plan"
	ActionUpdatePlan          = "update_plan"
	ActionDeletePlan          = "delete_plan"
	ActionSubscribe           = "subscribe"
	ActionCancelSubscription  = "cancel_subscription"
	ActionGenerateAccessCode  = "generate_access_code"
	ActionRedeemAccessCode    = "redeem_access_code"
	ActionRevokeAccessCode    = "revoke_access_code"
)

// AuditRecord неизменяемая запись журнала аудита.
type AuditRecord struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditFilter фильтр выборки журнала.
type AuditFilter struct {
	Action string
	UserID *int64
	Page   Page
}

// AuditList страница журнала.
type AuditList struct {
	Logs       []AuditRecord `json:"logs"`
	Pagination Pagination    `json:"pagination"`
}

// Stats сводка для панели администратора.
type Stats struct {
	UsersByRole         map[Role]int `json:"users_by_role"`
	TotalUsers          int          `json:"total_users"`
	ActiveUsersLastWeek int          `json:"active_users_last_week"`
	NewUsersLastMonth   int          `json:"new_users_last_month"`
	ActiveSubscriptions int          `json:"active_subscriptions"`
	CodesIssued         int          `json:"codes_issued"`
	CodesRedeemed       int          `json:"codes_redeemed"`
}
