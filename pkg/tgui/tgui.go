package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// MaxButtonText keeps URL button labels readable on phones.
const MaxButtonText = 48

// URLButton is an inline keyboard button opening a link.
type URLButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Keyboard lays buttons out in rows of perRow and returns nil for no buttons.
func Keyboard(buttons []URLButton, perRow int) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	if perRow <= 0 {
		perRow = 1
	}
	btns := make([]tele.Btn, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, tele.Btn{Text: TruncRunes(b.Text, MaxButtonText), URL: b.URL})
	}
	rm := &tele.ReplyMarkup{}
	rm.Inline(rm.Split(perRow, btns)...)
	return rm
}
