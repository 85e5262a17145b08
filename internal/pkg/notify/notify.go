package notify

// Notifier 邮件通知接口。
type Notifier interface {
	// SendVerificationCode 向用户邮箱发送注册验证码。
	SendVerificationCode(toEmail string, code string) error
}
