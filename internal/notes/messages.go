package notes

// User-visible outcomes. MsgNotFound deliberately does not distinguish a
// missing note from someone else's note.
const (
	MsgAdded    = "Заметка добавлена!"
	MsgDeleted  = "Заметка удалена!"
	MsgUpdated  = "Заметка обновлена!"
	MsgNotFound = "Заметка не найдена или не принадлежит вам"
	MsgEmpty    = "Заметка не может быть пустой."
	MsgTooLong  = "Заметка слишком длинная. Максимум 4000 символов."
	MsgFailure  = "Произошла ошибка. Попробуйте позже."

	cooldownAddFormat    = "Подождите %.1f секунд перед добавлением новой заметки"
	cooldownDeleteFormat = "Подождите %.1f секунд перед удалением заметки"
	cooldownUpdateFormat = "Подождите %.1f секунд перед обновлением заметки"

	invalidUserFormat = "Ошибка: некорректный user_id: %d"
	invalidNoteFormat = "Ошибка: некорректный note_id: %d"
)
