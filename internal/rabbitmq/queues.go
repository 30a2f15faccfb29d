package rabbitmq

// Ключи маршрутизации событий сервиса.
const (
	RoutingPasswordReset = "password_reset"
	RoutingAudit         = "audit"
)

// Очереди, которые читает почтовый воркер.
const (
	QueuePasswordReset = "mail.password_reset"
	QueueAudit         = "audit.events"
)

const prefetch = 10

// QueueConfig очередь и ключ, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// MailQueues очереди, которые слушает почтовый воркер.
func MailQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueuePasswordReset, RoutingKey: RoutingPasswordReset},
	}
}

// AllQueues все очереди сервиса, включая поток событий аудита.
func AllQueues() []QueueConfig {
	return append(MailQueues(), QueueConfig{QueueName: QueueAudit, RoutingKey: RoutingAudit})
}

// PasswordResetMail сообщение почтовому воркеру со ссылкой на сброс пароля.
type PasswordResetMail struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	ResetLink string `json:"reset_link"`
	ExpiresIn string `json:"expires_in"`
}
