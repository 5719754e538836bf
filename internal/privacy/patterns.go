package privacy

const digitWord = `(?:zero|one|two|three|four|five|six|seven|eight|nine|\d)`

// EmailMatcher finds well-formed addresses.
func EmailMatcher() Matcher {
	return NewMatcher("email", CategoryEmail,
		`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, nil)
}

// EmailWorkaroundMatcher finds spelled out addresses such as "john at gmail dot com".
func EmailWorkaroundMatcher() Matcher {
	return NewMatcher("email_workaround", CategoryEmail,
		`(?i)\b[A-Za-z0-9._%+-]+\s*(?:at|@|\(at\))\s*[A-Za-z0-9.-]+\s*(?:dot|\.|\(dot\))\s*(?:com|co\.za|net|org|za)\b`, nil)
}

// AtSymbolMatcher finds any remaining "@" usage, including bare handles.
func AtSymbolMatcher() Matcher {
	return NewMatcher("at_symbol", CategoryEmail,
		`(?:\b[A-Za-z0-9._%+-]+\s*)?@\s*[A-Za-z0-9._-]+`, nil)
}

// EmailProviderMatcher finds mentions of mail services without a full address.
func EmailProviderMatcher() Matcher {
	return NewMatcher("email_provider", CategoryEmailProvider,
		`(?i)\b(?:gmail|yahoo|hotmail|outlook|icloud|protonmail|mail|email)(?:\s*(?:\.com|\.co\.za|dot\s*com|account|address))?\b`, nil)
}

// WhatsAppMatcher finds messaging handles followed by a number.
func WhatsAppMatcher() Matcher {
	return NewMatcher("whatsapp", CategoryContact,
		`(?i)\b(?:whatsapp|wa|watsapp)\s*(?:me|number|num|no)?\s*[:=]?\s*\+?[0-9\s-]{7,}`,
		func(match string) bool { return digitCount(match) >= 7 })
}

// PhoneMatcher finds formatted phone numbers with at least seven digits.
func PhoneMatcher() Matcher {
	return NewMatcher("phone", CategoryPhone,
		`\b\+?\(?[0-9]{3}\)?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,6}\b`,
		func(match string) bool { return digitCount(match) >= 7 })
}

// PhoneWordsMatcher finds seven digits in a row, spelled out or spaced apart.
func PhoneWordsMatcher() Matcher {
	pattern := `(?i)\b` + digitWord
	for i := 0; i < 6; i++ {
		pattern += `\s*` + digitWord
	}
	return NewMatcher("phone_words", CategoryPhone, pattern, nil)
}

// MessagingAppMatcher finds bare mentions of off-platform chat apps.
func MessagingAppMatcher() Matcher {
	return NewMatcher("messaging_app", CategoryContact,
		`(?i)\b(?:whatsapp|watsapp|telegram)\b`, nil)
}

// URLMatcher finds http(s) and www links.
func URLMatcher() Matcher {
	return NewMatcher("url", CategoryLink,
		`https?://[^\s]+|www\.[a-zA-Z0-9][a-zA-Z0-9-]+[a-zA-Z0-9]\.[^\s]{2,}`, nil)
}

// DefaultMatchers returns the production pipeline in application order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		EmailMatcher(),
		EmailWorkaroundMatcher(),
		AtSymbolMatcher(),
		EmailProviderMatcher(),
		WhatsAppMatcher(),
		PhoneMatcher(),
		PhoneWordsMatcher(),
		MessagingAppMatcher(),
		URLMatcher(),
	}
}
