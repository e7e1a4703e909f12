// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package apps

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FeaturesVersion is bumped whenever FeatureNames changes.
const FeaturesVersion = 9

// FeatureNames lists the device features an app may require, in profile
// order.
var FeatureNames = []string{
	"apps", "packaged_apps", "pay", "activity", "light_events", "archive",
	"battery", "bluetooth", "contacts", "device_storage", "indexeddb",
	"geolocation", "idle", "network_info", "network_stats", "proximity",
	"push", "orientation", "time_clock", "vibrate", "fm", "sms", "touch",
	"qhd", "mp3", "audio", "webaudio", "video_h264", "video_webm",
	"fullscreen", "gamepad", "quota", "camera", "mic", "screen_capture",
	"webrtc_media", "webrtc_data", "webrtc_peer", "speech_syn", "speech_rec",
	"pointer_lock", "notification", "alarm", "systemxhr", "tcpsocket",
	"thirdparty_keyboard_support", "network_info_multiple", "mobileid",
	"precompile_asmjs", "hardware_512mb_ram", "hardware_1gb_ram", "nfc",
	"openmobileacl", "udpsocket",
}

// Features is the set of features required by a version.
type Features map[string]bool

// Has reports whether the named feature is required.
func (features Features) Has(name string) bool { return features[name] }

// Signature encodes the features as "<hex profile>.<feature count>.<version>".
func (features Features) Signature() string {
	n := len(FeatureNames) - 1
	profile := new(big.Int)
	for i, name := range FeatureNames {
		if features[name] {
			profile.SetBit(profile, n-i, 1)
		}
	}
	return fmt.Sprintf("%x.%d.%d", profile, len(FeatureNames), FeaturesVersion)
}

// ParseSignature decodes a feature signature produced by Signature.
func ParseSignature(signature string) (Features, error) {
	parts := strings.Split(signature, ".")
	if len(parts) != 3 {
		return nil, Error.New("invalid feature signature %q", signature)
	}
	profile, ok := new(big.Int).SetString(parts[0], 16)
	if !ok {
		return nil, Error.New("invalid feature profile %q", parts[0])
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return nil, Error.New("invalid feature count %q", parts[1])
	}

	n := len(FeatureNames) - 1
	features := Features{}
	for i, name := range FeatureNames {
		if profile.Bit(n-i) == 1 {
			features[name] = true
		}
	}
	return features, nil
}

// Names returns the required feature names in profile order.
func (features Features) Names() []string {
	var names []string
	for _, name := range FeatureNames {
		if features[name] {
			names = append(names, name)
		}
	}
	return names
}
