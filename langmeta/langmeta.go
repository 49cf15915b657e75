// Package langmeta provides a shared language metadata registry: display
// names and flags for CLI output, the English name used in translation
// prompts, and the language code the knowledge base expects.
package langmeta

import (
	"sort"
	"strings"
)

// Meta describes a language or locale.
type Meta struct {
	// Name is the native display name.
	Name string
	// English is the English name, used in model prompts.
	English string
	Flag    string
	// KB is the knowledge-base UI language (Wikidata "uselang").
	// Empty means the base language code.
	KB string
}

// Benchmark lists the target locales of the entity-aware translation
// benchmark, in the order reports print them.
var Benchmark = []string{
	"ar_AE", "de_DE", "es_ES", "fr_FR", "it_IT",
	"ja_JP", "ko_KR", "th_TH", "tr_TR", "zh_TW",
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ar":    {Name: "العربية", English: "Arabic", Flag: "🇸🇦"},
	"ar-AE": {Name: "العربية (الإمارات)", English: "Arabic", Flag: "🇦🇪"},
	"bg":    {Name: "Български", English: "Bulgarian", Flag: "🇧🇬"},
	"cs":    {Name: "Čeština", English: "Czech", Flag: "🇨🇿"},
	"da":    {Name: "Dansk", English: "Danish", Flag: "🇩🇰"},
	"de":    {Name: "Deutsch", English: "German", Flag: "🇩🇪"},
	"de-DE": {Name: "Deutsch (Deutschland)", English: "German", Flag: "🇩🇪"},
	"el":    {Name: "Ελληνικά", English: "Greek", Flag: "🇬🇷"},
	"en":    {Name: "English", English: "English", Flag: "🇺🇸"},
	"en-GB": {Name: "English (UK)", English: "British English", Flag: "🇬🇧", KB: "en-gb"},
	"en-US": {Name: "English (US)", English: "English", Flag: "🇺🇸"},
	"es":    {Name: "Español", English: "Spanish", Flag: "🇪🇸"},
	"es-ES": {Name: "Español (España)", English: "Spanish", Flag: "🇪🇸"},
	"es-MX": {Name: "Español (México)", English: "Mexican Spanish", Flag: "🇲🇽"},
	"fa":    {Name: "فارسی", English: "Persian", Flag: "🇮🇷"},
	"fi":    {Name: "Suomi", English: "Finnish", Flag: "🇫🇮"},
	"fr":    {Name: "Français", English: "French", Flag: "🇫🇷"},
	"fr-FR": {Name: "Français (France)", English: "French", Flag: "🇫🇷"},
	"fr-CA": {Name: "Français (Canada)", English: "Canadian French", Flag: "🇨🇦"},
	"he":    {Name: "עברית", English: "Hebrew", Flag: "🇮🇱"},
	"hi":    {Name: "हिन्दी", English: "Hindi", Flag: "🇮🇳"},
	"hu":    {Name: "Magyar", English: "Hungarian", Flag: "🇭🇺"},
	"id":    {Name: "Bahasa Indonesia", English: "Indonesian", Flag: "🇮🇩"},
	"it":    {Name: "Italiano", English: "Italian", Flag: "🇮🇹"},
	"it-IT": {Name: "Italiano (Italia)", English: "Italian", Flag: "🇮🇹"},
	"ja":    {Name: "日本語", English: "Japanese", Flag: "🇯🇵"},
	"ja-JP": {Name: "日本語 (日本)", English: "Japanese", Flag: "🇯🇵"},
	"ko":    {Name: "한국어", English: "Korean", Flag: "🇰🇷"},
	"ko-KR": {Name: "한국어 (대한민국)", English: "Korean", Flag: "🇰🇷"},
	"nl":    {Name: "Nederlands", English: "Dutch", Flag: "🇳🇱"},
	"nb":    {Name: "Norsk bokmål", English: "Norwegian Bokmål", Flag: "🇳🇴"},
	"pl":    {Name: "Polski", English: "Polish", Flag: "🇵🇱"},
	"pt":    {Name: "Português", English: "Portuguese", Flag: "🇵🇹"},
	"pt-BR": {Name: "Português (Brasil)", English: "Brazilian Portuguese", Flag: "🇧🇷", KB: "pt-br"},
	"ro":    {Name: "Română", English: "Romanian", Flag: "🇷🇴"},
	"ru":    {Name: "Русский", English: "Russian", Flag: "🇷🇺"},
	"sv":    {Name: "Svenska", English: "Swedish", Flag: "🇸🇪"},
	"th":    {Name: "ไทย", English: "Thai", Flag: "🇹🇭"},
	"th-TH": {Name: "ไทย (ประเทศไทย)", English: "Thai", Flag: "🇹🇭"},
	"tr":    {Name: "Türkçe", English: "Turkish", Flag: "🇹🇷"},
	"tr-TR": {Name: "Türkçe (Türkiye)", English: "Turkish", Flag: "🇹🇷"},
	"uk":    {Name: "Українська", English: "Ukrainian", Flag: "🇺🇦"},
	"vi":    {Name: "Tiếng Việt", English: "Vietnamese", Flag: "🇻🇳"},
	"zh":    {Name: "中文", English: "Chinese", Flag: "🇨🇳"},
	"zh-CN": {Name: "简体中文", English: "Simplified Chinese", Flag: "🇨🇳", KB: "zh-hans"},
	"zh-TW": {Name: "繁體中文", English: "Traditional Chinese", Flag: "🇹🇼", KB: "zh-hant"},
}

// Canonical normalizes a locale code: "_" becomes "-", the language is
// lower-cased and the region upper-cased ("pt_br" -> "pt-BR").
func Canonical(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Base returns the language part of a locale code ("zh_TW" -> "zh").
func Base(lang string) string {
	c := Canonical(lang)
	if i := strings.IndexByte(c, '-'); i >= 0 {
		return c[:i]
	}
	return c
}

func lookup(lang string) (Meta, bool) {
	if m, ok := Registry[lang]; ok {
		return m, true
	}
	normalized := Canonical(lang)
	if m, ok := Registry[normalized]; ok {
		return m, true
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m, true
		}
	}
	return Meta{}, false
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and locale fallbacks.
func Resolve(lang string) Meta {
	if m, ok := lookup(lang); ok {
		return m
	}
	return Meta{Name: lang, English: lang}
}

// Known reports whether lang or its base language is registered.
func Known(lang string) bool {
	_, ok := lookup(lang)
	return ok
}

// EnglishName returns the English language name for prompts
// ("zh_TW" -> "Traditional Chinese").
func EnglishName(lang string) string {
	return Resolve(lang).English
}

// KBCode returns the knowledge-base UI language for a locale. Chinese
// variants map to their script ("zh_TW" -> "zh-hant"); everything else
// uses the base language ("de_DE" -> "de").
func KBCode(lang string) string {
	if m, ok := Registry[Canonical(lang)]; ok && m.KB != "" {
		return m.KB
	}
	return Base(lang)
}

// Codes returns the sorted registry keys.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for c := range Registry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
