package bot

// Button labels. The router matches incoming text against these verbatim, so
// they double as command tokens.
const (
	ButtonAddNote    = "📝 Добавить заметку"
	ButtonShowNotes  = "📋 Показать заметки"
	ButtonDeleteNote = "🗑 Удалить заметку"
	ButtonReferrals  = "👥 Реферальная система"
	ButtonAdminPanel = "🔧 Админ-панель"
	ButtonCancel     = "❌ Отмена"

	ButtonStopBot     = "⏸️ Остановить бота"
	ButtonStartBot    = "▶️ Запустить бота"
	ButtonUsersList   = "👥 Список пользователей"
	ButtonBackToMenu  = "🔙 Назад к меню"
	ButtonManageRoles = "👮 Управление ролями"
	ButtonAdminsList  = "📋 Список администраторов"
	ButtonGrantRole   = "➕ Выдать роль"
	ButtonRevokeRole  = "➖ Снять роль"

	ButtonReferralTop   = "🏆 Топ рефереров"
	ButtonReferralShare = "🔗 Моя ссылка"
	ButtonReferralBack  = "🔙 Назад"
)

// Callback tokens carried in inline keyboard buttons.
const (
	CallbackStopBot     = "admin_stop_bot"
	CallbackStartBot    = "admin_start_bot"
	CallbackUsersList   = "admin_users_list"
	CallbackUsersPage   = "users_page_" // followed by the page number
	CallbackUsersInfo   = "users_info"
	CallbackManageRoles = "admin_manage_roles"
	CallbackAdminsList  = "admin_admins_list"
	CallbackGrantRole   = "admin_grant_role"
	CallbackRevokeRole  = "admin_revoke_role"
	CallbackPanelBack   = "admin_panel_back"

	CallbackReferralTop   = "referral_top"
	CallbackReferralShare = "referral_share"
	CallbackReferralBack  = "referral_back"
)

// Chat texts.
const (
	msgWelcome = "Привет! Я бот для заметок. Выберите действие:"
	msgMenu    = "Выберите действие:"
	msgPaused  = "🤖 Бот временно приостановлен администратором. Попробуйте позже."
	msgBlocked = "Вы заблокированы и не можете использовать бота."

	msgPromptNote       = "Отправьте текст заметки:"
	msgCancelled        = "Действие отменено."
	msgNoNotes          = "У вас пока нет заметок."
	msgPromptDelete     = "Отправьте номер заметки, которую нужно удалить:"
	msgInvalidSelection = "Некорректный номер. Отправьте номер заметки из списка:"

	msgAdminPanel      = "🔧 Админ-панель"
	msgRolesMenu       = "👮 Управление ролями"
	msgPromptGrantID   = "Отправьте ID пользователя, которому нужно выдать роль администратора:"
	msgPromptRevokeID  = "Отправьте ID пользователя, с которого нужно снять роль администратора:"
	msgStopDone        = "Бот остановлен. Только администратор может использовать бота."
	msgAlreadyStopped  = "Бот уже остановлен."
	msgStartDone       = "Бот запущен. Все пользователи могут использовать бота."
	msgAlreadyStarted  = "Бот уже работает."
	msgUsersPageHeader = "Страница %d из %d (всего пользователей: %d)"

	msgReferralMenu  = "👥 Реферальная система"
	msgReferralStats = "Ваши рефералы: %d (активных: %d)"
	msgReferralLink  = "Ваша реферальная ссылка:\nhttps://t.me/%s?start=ref%d"
	msgReferralEmpty = "Пока никто никого не пригласил."
	msgReferralTop   = "🏆 Топ рефереров:"

	msgReferralWelcome = "Вы пришли по приглашению! Добро пожаловать."
)
