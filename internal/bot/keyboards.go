package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// mainMenuKeyboard is the persistent reply keyboard. Admins get one extra
// row with the panel button.
func mainMenuKeyboard(isAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonAddNote),
			tgbotapi.NewKeyboardButton(ButtonShowNotes),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonDeleteNote),
			tgbotapi.NewKeyboardButton(ButtonReferrals),
		),
	}
	if isAdmin {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonAdminPanel),
		))
	}
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonCancel)),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func adminPanelKeyboard(paused bool) tgbotapi.InlineKeyboardMarkup {
	gateButton := tgbotapi.NewInlineKeyboardButtonData(ButtonStopBot, CallbackStopBot)
	if paused {
		gateButton = tgbotapi.NewInlineKeyboardButtonData(ButtonStartBot, CallbackStartBot)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(gateButton),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonUsersList, CallbackUsersList),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonManageRoles, CallbackManageRoles),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonBackToMenu, CallbackPanelBack),
		),
	)
}

func rolesKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonAdminsList, CallbackAdminsList),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonGrantRole, CallbackGrantRole),
			tgbotapi.NewInlineKeyboardButtonData(ButtonRevokeRole, CallbackRevokeRole),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonBackToMenu, CallbackPanelBack),
		),
	)
}

func usersPageKeyboard(page, totalPages int) tgbotapi.InlineKeyboardMarkup {
	var navigation []tgbotapi.InlineKeyboardButton
	if page > 1 {
		navigation = append(navigation, tgbotapi.NewInlineKeyboardButtonData(
			"⬅️", fmt.Sprintf("%s%d", CallbackUsersPage, page-1)))
	}
	navigation = append(navigation, tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("%d/%d", page, totalPages), CallbackUsersInfo))
	if page < totalPages {
		navigation = append(navigation, tgbotapi.NewInlineKeyboardButtonData(
			"➡️", fmt.Sprintf("%s%d", CallbackUsersPage, page+1)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		navigation,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonBackToMenu, CallbackPanelBack),
		),
	)
}

func referralKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonReferralTop, CallbackReferralTop),
			tgbotapi.NewInlineKeyboardButtonData(ButtonReferralShare, CallbackReferralShare),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(ButtonReferralBack, CallbackReferralBack),
		),
	)
}
