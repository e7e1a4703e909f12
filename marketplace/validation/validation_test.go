// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package validation_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace/validation"
)

func newValidator(t *testing.T) *validation.Validator {
	validator, err := validation.NewValidator(zaptest.NewLogger(t), validation.Config{
		MaxManifestSize: 2 * memory.MiB,
		MaxPackageSize:  10 * memory.MiB,
		UnzipLimit:      10 * memory.MiB,
	})
	require.NoError(t, err)
	return validator
}

func validate(ctx *testcontext.Context, t *testing.T, data []byte) *validation.Result {
	result, err := newValidator(t).Validate(ctx, bytes.NewReader(data), int64(len(data)), "")
	require.NoError(t, err)
	return result
}

func TestValidateHosted(t *testing.T) {
	ctx := testcontext.New(t)

	result := validate(ctx, t, []byte(`{"name": "Good", "version": "1.0", "icons": {"128": "/i.png"}}`))
	assert.True(t, result.Success)
	assert.Zero(t, result.Errors)
	assert.Equal(t, "Good", result.Metadata["name"])

	result = validate(ctx, t, []byte(`{"version": 1}`))
	assert.False(t, result.Success)
	assert.GreaterOrEqual(t, result.Errors, 2)

	result = validate(ctx, t, []byte(`{"name": "x", "type": "certified"}`))
	assert.False(t, result.Success)

	result = validate(ctx, t, []byte(`{"name": "x", "type": "privileged"}`))
	assert.Contains(t, result.ErrorMessages(), "Only packaged apps can be privileged.")

	result = validate(ctx, t, []byte(`garbage`))
	assert.Equal(t, []string{"The webapp manifest is not valid JSON."}, result.ErrorMessages())

	result = validate(ctx, t, []byte(`{"name": "x"}`))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Warnings)
}

func TestValidatePackaged(t *testing.T) {
	ctx := testcontext.New(t)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("manifest.webapp")
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"name": "Packaged", "type": "privileged", "launch_path": "/index.html"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	result := validate(ctx, t, buf.Bytes())
	assert.True(t, result.Success, result.ErrorMessages())
	assert.Equal(t, true, result.Metadata["packaged"])

	buf.Reset()
	w = zip.NewWriter(&buf)
	_, err = w.Create("index.html")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	result = validate(ctx, t, buf.Bytes())
	assert.False(t, result.Success)
	assert.Equal(t, []string{`The file "manifest.webapp" was not found at the root of the packaged app archive.`}, result.ErrorMessages())
}

func TestFailedAndMerge(t *testing.T) {
	existing := &validation.Result{Messages: []validation.Message{{Type: validation.TypeWarning, Message: "warn", Tier: 1}}}

	prelim := validation.Failed(existing, "one", "two")
	assert.True(t, prelim.Prelim)
	assert.False(t, prelim.Success)
	assert.Equal(t, 2, prelim.Errors)
	assert.Len(t, prelim.Messages, 3)

	decoded, err := validation.ParseResult(prelim.JSON())
	require.NoError(t, err)
	assert.Equal(t, prelim, decoded)

	result := &validation.Result{Success: true, Errors: 0, Messages: []validation.Message{}}
	merged := validation.Merge(result, decoded)
	assert.False(t, merged.Success)
	assert.Equal(t, 2, merged.Errors)
	assert.Len(t, merged.Messages, 3)

	plain := &validation.Result{Success: false, Errors: 1}
	merged = validation.Merge(&validation.Result{Success: true}, plain)
	assert.True(t, merged.Success)
	assert.Zero(t, merged.Errors)

	none, err := validation.ParseResult("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
