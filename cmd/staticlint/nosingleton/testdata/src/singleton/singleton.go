package singleton

import "example.com/app/internal/session"

var Default = session.New() // want "package-level session manager Default"

var (
	byValue session.Manager // want "package-level session manager byValue"
	count   int
)

var _ = count

type holder struct {
	manager *session.Manager
}

func build() *holder {
	local := session.New()
	return &holder{manager: local}
}

var _ = build
