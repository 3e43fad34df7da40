package community

const (
	baseUrl    = "https://steamcommunity.com"
	loginUrl   = "https://steamcommunity.com/login"
	doLoginUrl = "https://steamcommunity.com/login/dologin"
	rsaUrl     = "https://steamcommunity.com/login/getrsakey/"

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"
)

const (
	cookieSteamLoginSecure = "steamLoginSecure"
	cookieSteamLogin       = "steamLogin"
	cookieSessionID        = "sessionid"
)
