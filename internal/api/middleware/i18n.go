package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// LanguageKey is the gin context and session key holding the request language.
const LanguageKey = "language"

// Languages resolves language preferences to a supported language.
type Languages interface {
	Supports(lang string) bool
	Match(prefs ...string) string
	Default() string
}

// I18n selects the response language. The order is the "lang" query
// parameter (remembered in the session), the session, the Accept-Language
// header and finally the default language.
func I18n(langs Languages) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		lang := c.Query("lang")
		if lang != "" && langs.Supports(lang) {
			session.Set(LanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Debugf("Failed to save language in session: %v", err)
			}
		} else {
			lang = ""
			if v, ok := session.Get(LanguageKey).(string); ok && langs.Supports(v) {
				lang = v
			}
		}

		if lang == "" {
			if accept := c.GetHeader("Accept-Language"); accept != "" {
				lang = langs.Match(accept)
			} else {
				lang = langs.Default()
			}
		}

		c.Set(LanguageKey, lang)
		c.Next()
	}
}

// Language returns the language chosen by I18n, or "" when the middleware
// did not run.
func Language(c *gin.Context) string {
	return c.GetString(LanguageKey)
}
