package engine

// Button is one pressable menu entry. Key and Payload round-trip
// through the channel back into a Selection event.
type Button struct {
	Label   string
	Key     string
	Payload string
}

// Menu is a grid of buttons attached to an outbound message.
type Menu struct {
	Rows [][]Button
}

// Action is one outbound message produced by the engine. Rendering the
// menu into channel-specific UI happens outside the engine.
type Action struct {
	Text string
	Menu *Menu
}

func say(text string) Action {
	return Action{Text: text}
}

func ask(text string, menu *Menu) Action {
	return Action{Text: text, Menu: menu}
}

// chunk lays out buttons n per row.
func chunk(buttons []Button, n int) [][]Button {
	if n < 1 {
		n = 1
	}
	var rows [][]Button
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}
