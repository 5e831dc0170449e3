package basic

// Keys maps spoken key pronunciations to the key names the automation layer
// understands. Letters use the NATO alphabet so single-syllable noise never
// types a character.
func Keys() map[string]string {
	keys := map[string]string{
		// Named keys.
		"enter":     "Return",
		"tab":       "Tab",
		"escape":    "Escape",
		"space":     "space",
		"delete":    "Delete",
		"backspace": "BackSpace",
		"up":        "Up",
		"down":      "Down",
		"left":      "Left",
		"right":     "Right",
		"home":      "Home",
		"end":       "End",

		// Modifiers. The grammar treats any key as a modifier when it is
		// followed by "plus"; these are the useful ones.
		"control": "ctrl",
		"shift":   "shift",
		"alt":     "alt",
		"super":   "super",
	}

	letters := map[string]string{
		"alpha": "a", "bravo": "b", "charlie": "c", "delta": "d",
		"echo": "e", "foxtrot": "f", "golf": "g", "hotel": "h",
		"india": "i", "juliett": "j", "kilo": "k", "lima": "l",
		"mike": "m", "november": "n", "oscar": "o", "papa": "p",
		"quebec": "q", "romeo": "r", "sierra": "s", "tango": "t",
		"uniform": "u", "victor": "v", "whiskey": "w", "xray": "x",
		"yankee": "y", "zulu": "z",
	}
	for spoken, value := range letters {
		keys[spoken] = value
	}

	digits := []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	for i, spoken := range digits {
		keys[spoken] = string(rune('0' + i))
	}

	return keys
}
