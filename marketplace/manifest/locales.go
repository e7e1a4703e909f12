// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package manifest

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is used when no supported locale can be determined.
const DefaultLanguage = "en-US"

// Languages lists the supported locales.
var Languages = []string{
	"af", "ar", "bg", "bn-BD", "bn-IN", "ca", "cs", "cy", "da", "de", "dsb",
	"ee", "el", "en-GB", "en-US", "es", "eu", "ff", "fr", "fy_NL", "ga-IE",
	"ha", "hi-IN", "hsb", "hu", "id", "ig", "it", "ja", "ko", "nb-NO", "nl",
	"pl", "pt-BR", "ro", "ru", "sk", "sl", "sq", "sr", "sr-Latn", "sv-SE",
	"sw", "tr", "uk", "wo", "xh", "yo", "zh-CN", "zh-TW", "zu",
}

var shorterLanguages = map[string]string{
	"en": "en-US",
	"ga": "ga-IE",
	"pt": "pt-PT",
	"sv": "sv-SE",
	"zh": "zh-CN",
}

var supported = func() map[string]string {
	m := make(map[string]string, len(Languages))
	for _, lang := range Languages {
		m[lang] = lang
	}
	return m
}()

// ToLanguage converts a locale such as "en_us" into its language tag
// form "en-US". Unparseable input is returned with only separators
// normalized.
func ToLanguage(locale string) string {
	norm := strings.ReplaceAll(locale, "_", "-")
	tag, err := language.Parse(norm)
	if err != nil {
		return norm
	}
	return tag.String()
}

// FindLanguage returns the supported locale matching locale or "".
func FindLanguage(locale string) string {
	if locale == "" {
		return ""
	}
	if lang, ok := supported[locale]; ok {
		return lang
	}
	if short, ok := shorterLanguages[locale]; ok {
		if lang, ok := supported[short]; ok {
			return lang
		}
	}
	if lang, ok := supported[ToLanguage(locale)]; ok {
		return lang
	}
	return ""
}

// SupportedLocales returns the sorted supported locales the manifest
// declares.
func (m Manifest) SupportedLocales() []string {
	locales, err := m.Locales()
	if err != nil {
		return nil
	}

	var result []string
	seen := map[string]bool{}
	for locale := range locales {
		lang := FindLanguage(locale)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		result = append(result, lang)
	}
	sort.Strings(result)
	return result
}

// LocaleProperties returns prop for every declared locale. The default
// locale takes the root value. appDefault is used when the manifest has
// no default_locale.
func (m Manifest) LocaleProperties(prop, appDefault string) map[string]interface{} {
	props := map[string]interface{}{}

	locales, _ := m.Locales()
	for locale, values := range locales {
		if value, ok := values[prop]; ok {
			props[locale] = value
		}
	}

	defaultLocale := appDefault
	if locale := m.String("default_locale"); locale != "" {
		defaultLocale = locale
	}
	if value, ok := m[prop]; ok {
		props[defaultLocale] = value
	}
	return props
}
