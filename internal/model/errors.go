// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, delivery, entry, channel, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
	ErrCodeChannelNotFound    = "CHANNEL_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeEmailNotConfigured = "EMAIL_NOT_CONFIGURED"
	ErrCodeInvalidDestination = "INVALID_DESTINATION"
	ErrCodeInvalidContent     = "INVALID_CONTENT"
	ErrCodeChannelExists      = "CHANNEL_EXISTS"
	ErrCodeInviteOnly         = "INVITE_ONLY"
	ErrCodeAlreadyPublished   = "ALREADY_PUBLISHED"
)

// 配信結果の失敗理由（DeliveryResultに載せる短い文字列）。
// RESTレイヤーがそのままユーザーに提示するため、安定した文言として扱う。
const (
	DeliveryReasonUserNotFound       = "User not found"
	DeliveryReasonEmailNotConfigured = "Email not configured"
	DeliveryReasonInternalURLBlocked = "Internal URLs are blocked for security"
)

// NewEntryNotFoundError はエントリ未検出エラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定されたエントリが見つかりません: %s", entryID),
		Category: "entry",
		Action:   "エントリIDを確認してください。",
	}
}

// NewChannelNotFoundError はチャンネル未検出エラーを生成する。
func NewChannelNotFoundError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("指定されたチャンネルが見つかりません: %s", channelID),
		Category: "channel",
		Action:   "チャンネルIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(handle string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", handle),
		Category: "auth",
		Action:   "ハンドル名を確認してください。",
	}
}

// NewForbiddenError は閲覧・操作権限がない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このエントリへのアクセス権限がありません。",
		Category: "auth",
		Action:   "宛先に含まれるアカウントでアクセスしてください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebhook URLを指定してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewChannelExistsError はチャンネルIDが既に使用されている場合のエラーを生成する。
func NewChannelExistsError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelExists,
		Message:  fmt.Sprintf("チャンネルIDは既に使用されています: %s", channelID),
		Category: "channel",
		Action:   "別のチャンネルIDを指定してください。",
	}
}

// NewInviteOnlyError は招待制チャンネルへの参加が拒否された場合のエラーを生成する。
func NewInviteOnlyError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeInviteOnly,
		Message:  fmt.Sprintf("チャンネルは招待制です: %s", channelID),
		Category: "channel",
		Action:   "チャンネルのオーナーに招待を依頼してください。",
	}
}

// NewInvalidContentError は本文が不正な場合のエラーを生成する。
// サニタイズ後に空になった本文もこのエラーになる。
func NewInvalidContentError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContent,
		Message:  "本文が空です。",
		Category: "validation",
		Action:   "本文を入力してください。",
	}
}

// NewInvalidDestinationError は宛先リストが不正な場合のエラーを生成する。
func NewInvalidDestinationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDestination,
		Message:  fmt.Sprintf("宛先リストが不正です: %s", reason),
		Category: "validation",
		Action:   "@handle、#channel、メールアドレス、またはWebhook URLを指定してください。",
	}
}
