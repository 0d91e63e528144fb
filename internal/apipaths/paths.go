package apipaths

// Route paths shared by the router, the provider handlers and tests.

const (
	AuthPrefix = "/auth"
	AuthUser   = "/auth/user"
	Health     = "/api/health"
	Session    = "/api/session"
	Me         = "/api/me"
)

func ProviderLogin(name string) string    { return AuthPrefix + "/" + name + "/login" }
func ProviderCallback(name string) string { return AuthPrefix + "/" + name + "/callback" }
func ProviderLogout(name string) string   { return AuthPrefix + "/" + name + "/logout" }
