package session

type Manager struct{}

func New() *Manager {
	return &Manager{}
}
