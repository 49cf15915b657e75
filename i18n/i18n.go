// Package i18n translates the entsub command's own messages.
//
// Catalogs are embedded PO files loaded once by Init:
//
//	i18n.Init("")  // ENTSUB_LANG, LANGUAGE, LC_ALL, LC_MESSAGES, LANG
//	fmt.Println(i18n.N("%d sentence failed", "%d sentences failed", n))
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Catalogs live in locales/{lang}/LC_MESSAGES/entsub.po.
//
//go:embed all:locales
var locales embed.FS

const domain = "entsub"

// po is nil until Init.
var po *gotext.Locale

// Init loads the catalog for lang, or for the language named by the
// environment when lang is empty. Call it once before T or N.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}

	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// T returns the translation of msgid, or msgid itself.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N picks the plural form for n from the catalog. Without a catalog the
// English rule applies.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// EnvLang overrides the locale environment for entsub's own messages.
const EnvLang = "ENTSUB_LANG"

// localeVars are consulted in gettext order after EnvLang.
var localeVars = []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"}

// detectLanguage returns the message language named by the environment,
// or "en".
func detectLanguage() string {
	for _, name := range append([]string{EnvLang}, localeVars...) {
		if lang := localeName(os.Getenv(name)); lang != "" {
			return lang
		}
	}
	return "en"
}

// localeName reduces a locale variable to a catalog name: the first entry
// of a LANGUAGE list without its codeset or modifier ("ru_RU.UTF-8:en" ->
// "ru_RU"). C and POSIX select no catalog.
func localeName(v string) string {
	v, _, _ = strings.Cut(v, ":")
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "C" || v == "POSIX" {
		return ""
	}
	return v
}
