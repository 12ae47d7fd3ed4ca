package handler

import (
	"net/http"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/push"
)

// ConfigHandler exposes the public client settings.
type ConfigHandler struct {
	push        *push.Client
	maxUploadMB int64
}

func NewConfigHandler(pushClient *push.Client, maxUploadMB int64) *ConfigHandler {
	return &ConfigHandler{push: pushClient, maxUploadMB: maxUploadMB}
}

type pushConfig struct {
	Enabled        bool   `json:"enabled"`
	VAPIDPublicKey string `json:"vapid_public_key,omitempty"`
}

type clientConfig struct {
	MaxUploadMB int64      `json:"max_upload_mb"`
	Push        pushConfig `json:"push"`
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg := clientConfig{MaxUploadMB: h.maxUploadMB}
	if h.push.Enabled() {
		key, err := h.push.PublicKey(r.Context())
		if err != nil {
			logger.Errorf("push public key: %v", err)
		}
		cfg.Push = pushConfig{Enabled: key != "", VAPIDPublicKey: key}
	}
	writeJSON(w, http.StatusOK, cfg)
}
