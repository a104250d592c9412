package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/joshp123/gohass/internal/core"
	"go.uber.org/zap"
)

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

type pluginHealth struct {
	PluginID string `json:"plugin_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Plugins []pluginHealth `json:"plugins"`
}

// HealthHandler reports "ok" when every plugin is healthy, "error" when any
// plugin is in error and "degraded" otherwise. It always answers 200 so liveness checks only fail when the
// process is gone.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Plugins: []pluginHealth{}}
		for _, p := range plugins {
			health := p.Health()
			switch {
			case health == core.HealthError:
				resp.Status = "error"
			case health != core.HealthHealthy && resp.Status == "ok":
				resp.Status = "degraded"
			}
			resp.Plugins = append(resp.Plugins, pluginHealth{
				PluginID: p.ID(),
				Status:   string(health),
				Message:  p.HealthMessage(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type entitiesQuery struct {
	Platform string `schema:"platform"`
}

// EntitiesHandler lists entity states, optionally filtered by ?platform=.
func EntitiesHandler(entities *core.EntityRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q entitiesQuery
		if err := decoder.Decode(&q, r.URL.Query()); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities.States(core.Platform(q.Platform))})
	}
}

// EntityHandler returns one entity state by {entity_id}.
func EntityHandler(entities *core.EntityRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := entities.Get(r.PathValue("entity_id"))
		if !ok {
			writeError(w, http.StatusNotFound, core.ErrUnknownEntity)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

type temperatureForm struct {
	Temperature *float64 `schema:"temperature,required"`
}

// SetTemperatureHandler accepts a form or query with temperature=<float>.
func SetTemperatureHandler(entities *core.EntityRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var form temperatureForm
		if err := decoder.Decode(&form, r.Form); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := core.CheckTemperature(*form.Temperature); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entityID := r.PathValue("entity_id")
		if err := entities.SetTemperature(r.Context(), entityID, *form.Temperature); err != nil {
			code := http.StatusConflict
			switch {
			case errors.Is(err, core.ErrUnknownEntity):
				code = http.StatusNotFound
			case errors.Is(err, core.ErrInvalidTemperature):
				code = http.StatusBadRequest
			}
			logger.Warn("set temperature failed", zap.String("entity_id", entityID), zap.Error(err))
			writeError(w, code, err)
			return
		}
		state, _ := entities.Get(entityID)
		writeJSON(w, http.StatusOK, state)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
