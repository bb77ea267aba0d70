package users

// User-visible outcomes. One stable string per denial category so callers
// and tests can match exactly.
const (
	MsgAccessDeniedAdmin = "Доступ запрещен. Только администратор может выполнить эту команду."
	MsgAccessDeniedOwner = "Доступ запрещен. Только главный администратор может выполнить эту команду."
	MsgOwnerImmutable    = "Нельзя изменить роль главного администратора."
	MsgAlreadyAdmin      = "Пользователь уже является администратором."
	MsgNotAnAdmin        = "Пользователь не является администратором."
	MsgInvalidUserID     = "Ошибка: некорректный ID пользователя."
	MsgStoreFailure      = "Произошла ошибка. Попробуйте позже."
)
