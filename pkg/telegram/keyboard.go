package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is one inline keyboard button. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// Row appends a row built from buttons and returns the keyboard.
func (k Keyboard) Row(buttons ...Button) Keyboard {
	if len(buttons) == 0 {
		return k
	}
	return append(k, buttons)
}

// URLButton opens url.
func URLButton(text, url string) Button {
	return Button{Text: text, URL: url}
}

// DataButton sends data back as a callback query.
func DataButton(text, data string) Button {
	return Button{Text: text, Data: data}
}

func (k Keyboard) markup() *tgbotapi.InlineKeyboardMarkup {
	if len(k) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(k))
	for _, row := range k {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
