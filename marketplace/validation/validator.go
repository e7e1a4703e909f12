// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package validation

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/gojsonschema"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/common/memory"

	"github.com/mozilla/marketplace/marketplace/manifest"
)

var mon = monkit.Package()

// Config contains the validator limits.
type Config struct {
	MaxManifestSize memory.Size `help:"maximum size of a hosted manifest" default:"2MiB"`
	MaxPackageSize  memory.Size `help:"maximum size of a packaged app" default:"100MiB"`
	UnzipLimit      memory.Size `help:"maximum uncompressed size of a packaged app" default:"1GiB"`
}

const manifestSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 128},
		"description": {"type": "string", "maxLength": 1024},
		"version": {"type": "string"},
		"type": {"type": "string", "enum": ["web", "privileged", "certified"]},
		"default_locale": {"type": "string"},
		"launch_path": {"type": "string"},
		"origin": {"type": "string"},
		"role": {"type": "string"},
		"developer": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"url": {"type": "string"}
			}
		},
		"locales": {"type": "object"},
		"icons": {"type": "object"},
		"permissions": {"type": "object"}
	}
}`

// Validator checks hosted manifests and packaged apps.
type Validator struct {
	log    *zap.Logger
	config Config
	schema *gojsonschema.Schema
}

// NewValidator compiles the manifest schema.
func NewValidator(log *zap.Logger, config Config) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Validator{log: log, config: config, schema: schema}, nil
}

// Validate validates the app read from r. url is the manifest url of
// hosted apps. An error is returned only when the validation could not
// run; problems with the app are reported in the result.
func (validator *Validator) Validate(ctx context.Context, r io.ReaderAt, size int64, url string) (_ *Result, err error) {
	defer mon.Task()(&ctx)(&err)

	result := &Result{Success: true, Metadata: map[string]interface{}{}}
	packaged := manifest.IsZip(r, size)
	result.Metadata["packaged"] = packaged
	if url != "" {
		result.Metadata["manifest_url"] = url
	}

	limit := validator.config.MaxManifestSize
	if packaged {
		limit = validator.config.MaxPackageSize
	}
	if limit > 0 && size > limit.Int64() {
		result.Add(TypeError, fmt.Sprintf("Your app must be less than %d bytes.", limit.Int64()))
		return result, nil
	}

	m, _, err := manifest.Load(r, size, validator.config.UnzipLimit.Int64())
	if err != nil {
		if manifest.ErrInvalid.Has(err) {
			result.Add(TypeError, manifest.Message(err))
			return result, nil
		}
		return nil, Error.Wrap(err)
	}

	validator.checkManifest(result, m, packaged)
	mon.Counter("validations").Inc(1)
	validator.log.Debug("validated app",
		zap.Bool("packaged", packaged),
		zap.Int("errors", result.Errors),
		zap.Int("warnings", result.Warnings))
	return result, nil
}

func (validator *Validator) checkManifest(result *Result, m manifest.Manifest, packaged bool) {
	schemaResult, err := validator.schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(m)))
	if err != nil {
		result.Add(TypeError, "The webapp manifest is not valid JSON.")
		return
	}
	for _, desc := range schemaResult.Errors() {
		result.Add(TypeError, fmt.Sprintf("%s: %s", desc.Context, desc.Description))
	}

	switch m.String("type") {
	case "certified":
		result.Add(TypeError, "Certified apps cannot be submitted to the Marketplace.")
	case "privileged":
		if !packaged {
			result.Add(TypeError, "Only packaged apps can be privileged.")
		}
	}

	if _, err := m.Locales(); err != nil {
		result.Add(TypeError, manifest.Message(err))
	}
	if m.Object("icons") == nil {
		result.Add(TypeWarning, "An icon is recommended for every app.")
	}
	if packaged && m.String("launch_path") == "" {
		result.Add(TypeNotice, "Packaged apps usually declare a launch_path.")
	}

	result.Metadata["name"] = m.String("name")
	result.Metadata["version"] = m.String("version")
	if t := m.String("type"); t != "" {
		result.Metadata["type"] = t
	}
}
