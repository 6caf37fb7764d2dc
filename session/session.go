package session

// Settings carries per-session execution knobs consumed by the engine
// when a pipeline is built.
type Settings struct {
	// rows per produced block
	MaxBlockSize int
	// pipeline pump workers
	MaxThreads int
	// collect min/max extremes over pulled blocks
	Extremes bool
}

func DefaultSettings() Settings {
	return Settings{
		MaxBlockSize: 65409,
		MaxThreads:   2,
		Extremes:     false,
	}
}

// Session is the opaque security/identity handle a driver runs queries
// under. Consumed read-only by sendQuery.
type Session struct {
	User            string
	DefaultDatabase string
	ExternalRoles   []string

	Settings Settings
}

func New(user string) *Session {
	return &Session{
		User:            user,
		DefaultDatabase: "default",
		Settings:        DefaultSettings(),
	}
}

func (s *Session) SetDefaultDatabase(name string) {
	s.DefaultDatabase = name
}
