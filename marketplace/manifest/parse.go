// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package manifest

// Data is the app information taken from a manifest.
type Data struct {
	Name          map[string]string
	Description   map[string]string
	DeveloperName string
	Version       string
	DefaultLocale string
	Origin        string
	Type          string
	Role          string

	Manifest Manifest
}

// Parse extracts the app information from a manifest. fallbackLocale is
// used when the manifest has no default_locale.
func Parse(m Manifest, fallbackLocale string) (*Data, error) {
	if m.String("role") == "langpack" {
		return nil, ErrInvalid.New(`The "langpack" role is invalid for Web Apps. Please submit this app as a language pack instead.`)
	}

	locale := fallbackLocale
	if _, ok := m["default_locale"]; ok {
		locale = m.String("default_locale")
	}
	defaultLocale := transLocale(locale)

	locales, err := m.Locales()
	if err != nil {
		return nil, err
	}

	name, ok := m["name"].(string)
	if !ok {
		return nil, ErrInvalid.New(`The "name" property is required in the manifest.`)
	}

	descriptions := extractLocale(locales, "description", "")
	if _, ok := m["description"]; ok {
		descriptions[defaultLocale] = m.String("description")
	}

	names := extractLocale(locales, "name", name)
	names[defaultLocale] = name

	developerName := ""
	if developer := m.Object("developer"); developer != nil {
		developerName, _ = developer["name"].(string)
	}
	if developerName == "" {
		return nil, ErrInvalid.New("Developer name is required in the manifest in order to display it on the app's listing.")
	}

	version := "1.0"
	if _, ok := m["version"]; ok {
		version = m.String("version")
	}

	return &Data{
		Name:          transAllLocales(names),
		Description:   transAllLocales(descriptions),
		DeveloperName: developerName,
		Version:       version,
		DefaultLocale: defaultLocale,
		Origin:        m.String("origin"),
		Type:          m.String("type"),
		Role:          m.String("role"),
		Manifest:      m,
	}, nil
}

// extractLocale gets key from every locale, falling back to def.
func extractLocale(locales map[string]map[string]interface{}, key, def string) map[string]string {
	ex := make(map[string]string, len(locales))
	for locale, props := range locales {
		value, ok := props[key].(string)
		if !ok {
			value = def
		}
		ex[locale] = value
	}
	return ex
}

func transLocale(locale string) string {
	if short, ok := shorterLanguages[locale]; ok {
		locale = short
	}
	return ToLanguage(locale)
}

func transAllLocales(values map[string]string) map[string]string {
	trans := make(map[string]string, len(values))
	for locale, value := range values {
		trans[transLocale(locale)] = value
	}
	return trans
}
