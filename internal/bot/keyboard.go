package bot

import "vkwatch/internal/transport"

// Reply-keyboard labels.
const (
	btnStatus     = "Статус"
	btnExport     = "Экспорт в Excel"
	btnAddGroup   = "Добавить группу"
	btnAddKeyword = "Добавить ключевое слово"
	btnGroups     = "Список групп"
	btnKeywords   = "Список ключевых слов"
	btnCheck      = "Проверить сейчас"
	btnDelGroup   = "Удалить группу"
	btnDelKeyword = "Удалить ключевое слово"
	btnClearKw    = "Удалить все ключевые слова"
	btnAddChat    = "Добавить чат"
	btnDelChat    = "Удалить чат"
	btnChats      = "Список чатов"
)

var mainKeyboard = [][]string{
	{btnAddGroup, btnAddKeyword},
	{btnGroups, btnKeywords},
	{btnCheck, btnDelGroup, btnDelKeyword},
	{btnClearKw, btnStatus, btnExport},
	{btnAddChat, btnDelChat, btnChats},
}

// adminKeyboard is shown in group chats: status and export first.
var adminKeyboard = [][]string{
	{btnStatus, btnExport},
	{btnAddGroup, btnAddKeyword},
	{btnGroups, btnKeywords},
	{btnCheck, btnDelGroup, btnDelKeyword},
	{btnClearKw},
	{btnAddChat, btnDelChat, btnChats},
}

func keyboardFor(msg *transport.Message) [][]string {
	if msg.IsGroup() {
		return adminKeyboard
	}
	return mainKeyboard
}
