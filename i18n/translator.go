// Package i18n supplies default messages for rule codes when a rule is
// declared without an explicit message.
package i18n

import "sync"

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "field").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	field := data["field"]
	switch t.lang {
	case "ja":
		switch code {
		case "required":
			if field != "" {
				return field + "は必須です"
			}
			return "必須項目です"
		case "invalid_type":
			return "型が不正です"
		case "too_small":
			return "小さすぎます"
		case "too_big":
			return "大きすぎます"
		case "too_short":
			return "短すぎます"
		case "pattern":
			return "形式が不正です"
		case "uniqueness":
			return "値が重複しています"
		case "mismatch":
			return "値が一致しません"
		case "business_rule":
			return "入力内容が不正です"
		case "dependency_unavailable":
			return "依存先サービスが利用できません"
		}
	default: // "en"
		switch code {
		case "required":
			if field != "" {
				return field + " is required"
			}
			return "required"
		case "invalid_type":
			return "invalid type"
		case "too_small":
			return "too small"
		case "too_big":
			return "too big"
		case "too_short":
			return "too short"
		case "pattern":
			return "invalid format"
		case "uniqueness":
			return "duplicate value"
		case "mismatch":
			return "values do not match"
		case "business_rule":
			return "invalid value"
		case "dependency_unavailable":
			return "dependency unavailable"
		}
	}
	return code
}

var (
	mu                           = sync.RWMutex{}
	currentTranslator Translator = dictTranslator{lang: "en"}
)

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	mu.Lock()
	currentTranslator = dictTranslator{lang: lang}
	mu.Unlock()
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	mu.Lock()
	currentTranslator = tr
	mu.Unlock()
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string {
	mu.RLock()
	tr := currentTranslator
	mu.RUnlock()
	return tr.Message(code, data)
}
