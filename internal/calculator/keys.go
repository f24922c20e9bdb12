package calculator

// KeyAction maps a keyboard key name to the action it triggers. Keys with no
// binding report false and should be ignored.
func KeyAction(key string) (Action, bool) {
	switch key {
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
		".", "+", "-", "*", "/", "(", ")":
		return Action{Kind: ActionAppend, Value: key}, true
	case "%":
		return Action{Kind: ActionPercent}, true
	case "Backspace":
		return Action{Kind: ActionBackspace}, true
	case "Escape":
		return Action{Kind: ActionClear}, true
	case "Enter", "=":
		return Action{Kind: ActionEvaluate}, true
	}
	return Action{}, false
}
