package webostv

import (
	"encoding/json"
	"fmt"
)

const (
	defaultPort = "3000"

	uriPointerSocket    = "ssap://com.webos.service.networkinput/getPointerInputSocket"
	uriSoundOutput      = "ssap://audio/changeSoundOutput"
	uriGetSoundOutput   = "ssap://com.webos.service.apiadapter/audio/getSoundOutput"
	uriCreateToast      = "ssap://system.notifications/createToast"
	uriGetVolume        = "ssap://audio/getVolume"
	uriForegroundApp    = "ssap://com.webos.applicationManager/getForegroundAppInfo"
	registerID          = "register_0"
	pairingTypePrompt   = "PROMPT"
	messageRegister     = "register"
	messageRegistered   = "registered"
	messageRequest      = "request"
	messageSubscribe    = "subscribe"
	messageResponse     = "response"
	messageError        = "error"
	clientKeyPayloadKey = "client-key"
)

// message is one SSAP frame in either direction.
type message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	URI     string          `json:"uri,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type registerPayload struct {
	ForcePairing bool           `json:"forcePairing"`
	PairingType  string         `json:"pairingType"`
	ClientKey    string         `json:"client-key,omitempty"`
	Manifest     map[string]any `json:"manifest"`
}

// registrationManifest lists the permissions requested when pairing.
func registrationManifest() map[string]any {
	return map[string]any{
		"manifestVersion": 1,
		"appVersion":      "1.1",
		"permissions": []string{
			"LAUNCH",
			"LAUNCH_WEBAPP",
			"APP_TO_APP",
			"CLOSE",
			"TEST_OPEN",
			"TEST_PROTECTED",
			"CONTROL_AUDIO",
			"CONTROL_DISPLAY",
			"CONTROL_INPUT_JOYSTICK",
			"CONTROL_INPUT_MEDIA_RECORDING",
			"CONTROL_INPUT_MEDIA_PLAYBACK",
			"CONTROL_INPUT_TV",
			"CONTROL_POWER",
			"READ_APP_STATUS",
			"READ_CURRENT_CHANNEL",
			"READ_INPUT_DEVICE_LIST",
			"READ_NETWORK_STATE",
			"READ_RUNNING_APPS",
			"READ_TV_CHANNEL_LIST",
			"WRITE_NOTIFICATION_TOAST",
			"READ_POWER_STATE",
			"READ_COUNTRY_INFO",
			"CONTROL_INPUT_TEXT",
			"CONTROL_MOUSE_AND_KEYBOARD",
			"READ_INSTALLED_APPS",
			"READ_SETTINGS",
		},
		"signed": map[string]any{
			"appId":    "com.lge.test",
			"vendorId": "com.lge",
			"created":  "20140509",
			"localizedAppNames": map[string]string{
				"": "LG Remote App",
			},
			"localizedVendorNames": map[string]string{
				"": "LG Electronics",
			},
			"permissions": []string{
				"TEST_SECURE",
				"CONTROL_INPUT_TEXT",
				"CONTROL_MOUSE_AND_KEYBOARD",
				"READ_INSTALLED_APPS",
				"READ_LGE_SDX",
				"READ_NOTIFICATIONS",
				"SEARCH",
				"WRITE_SETTINGS",
				"WRITE_NOTIFICATION_ALERT",
				"CONTROL_POWER",
				"READ_CURRENT_CHANNEL",
				"READ_RUNNING_APPS",
				"READ_UPDATE_INFO",
				"UPDATE_FROM_REMOTE_APP",
				"READ_LGE_TV_INPUT_EVENTS",
				"READ_TV_CURRENT_TIME",
			},
			"serial": "2f930e2d2cfe083771f68e4fe7bb07",
		},
	}
}

// replyPayload is the part of every response the client inspects.
type replyPayload struct {
	ReturnValue *bool  `json:"returnValue"`
	ErrorText   string `json:"errorText"`
	PairingType string `json:"pairingType"`
	ClientKey   string `json:"client-key"`
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// buttonFrame is the pointer-socket text frame for one remote key press.
func buttonFrame(name string) string {
	return "type:button\nname:" + name + "\n\n"
}
