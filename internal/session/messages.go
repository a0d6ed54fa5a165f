package session

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/patric-chuzhbe/sanasto/internal/identity"
)

// Message keys are the English texts.
const (
	msgLoginFailed     = "Login failed"
	msgInvalidEmail    = "Invalid email address"
	msgAccountNotFound = "Account not found"
	msgWrongPassword   = "Wrong password"
	msgTooManyAttempts = "Too many attempts"
	msgSignupFailed    = "Account creation failed"
	msgEmailInUse      = "Email address is already in use"
	msgWeakPassword    = "Password must be at least 6 characters"
	msgLogoutFailed    = "Logout failed"
)

var translations = map[language.Tag]map[string]string{
	language.Finnish: {
		msgLoginFailed:     "Kirjautuminen epäonnistui",
		msgInvalidEmail:    "Virheellinen sähköpostiosoite",
		msgAccountNotFound: "Käyttäjää ei löydy",
		msgWrongPassword:   "Väärä salasana",
		msgTooManyAttempts: "Liikaa yrityksiä",
		msgSignupFailed:    "Tilin luonti epäonnistui",
		msgEmailInUse:      "Sähköpostiosoite on jo käytössä",
		msgWeakPassword:    "Salasanan tulee olla vähintään 6 merkkiä",
		msgLogoutFailed:    "Uloskirjautuminen epäonnistui",
	},
	language.Swedish: {
		msgLoginFailed:     "Inloggningen misslyckades",
		msgInvalidEmail:    "Ogiltig e-postadress",
		msgAccountNotFound: "Användaren hittades inte",
		msgWrongPassword:   "Fel lösenord",
		msgTooManyAttempts: "För många försök",
		msgSignupFailed:    "Det gick inte att skapa kontot",
		msgEmailInUse:      "E-postadressen används redan",
		msgWeakPassword:    "Lösenordet måste vara minst 6 tecken",
		msgLogoutFailed:    "Utloggningen misslyckades",
	},
}

var messages = buildCatalog()

func buildCatalog() *catalog.Builder {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))

	for tag, texts := range translations {
		for key, text := range texts {
			if err := builder.SetString(tag, key, text); err != nil {
				panic(err)
			}
			if err := builder.SetString(language.English, key, key); err != nil {
				panic(err)
			}
		}
	}

	return builder
}

// SupportedLanguages lists the languages AuthError messages are available in.
var SupportedLanguages = []language.Tag{language.Finnish, language.Swedish, language.English}

func newPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}

func loginMessageKey(code string) string {
	switch code {
	case identity.CodeInvalidEmail:
		return msgInvalidEmail
	case identity.CodeUserNotFound:
		return msgAccountNotFound
	case identity.CodeWrongPassword, identity.CodeInvalidCredential:
		return msgWrongPassword
	case identity.CodeTooManyRequests:
		return msgTooManyAttempts
	}
	return msgLoginFailed
}

func signupMessageKey(code string) string {
	switch code {
	case identity.CodeEmailAlreadyInUse:
		return msgEmailInUse
	case identity.CodeInvalidEmail:
		return msgInvalidEmail
	case identity.CodeWeakPassword:
		return msgWeakPassword
	}
	return msgSignupFailed
}

func logoutMessageKey(string) string {
	return msgLogoutFailed
}
