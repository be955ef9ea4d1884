package models

import "time"

// Audited administrative actions.
const (
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionChatbotCreate  = "CHATBOT_CREATE"
	AuditActionChatbotUpdate  = "CHATBOT_UPDATE"
	AuditActionChatbotDelete  = "CHATBOT_DELETE"
	AuditActionAttemptsReset  = "ATTEMPTS_RESET"
	AuditActionEvaluationRun  = "EVALUATION_RUN"
	AuditActionMaterialUpload = "MATERIAL_UPLOAD"
	AuditActionMaterialDelete = "MATERIAL_DELETE"
	AuditActionStudentCreate  = "STUDENT_CREATE"
	AuditActionStudentAssign  = "STUDENT_ASSIGN"
	AuditActionStudentDelete  = "STUDENT_DELETE"
	AuditActionClassCreate    = "CLASS_CREATE"
	AuditActionClassDelete    = "CLASS_DELETE"
)

// AuditLog is one row of the administrative audit trail.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
