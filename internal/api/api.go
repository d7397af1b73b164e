// Package api exposes the tracker over a JSON HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tubewatch/internal/dispatch"
	"tubewatch/internal/feed"
	"tubewatch/internal/model"
	"tubewatch/internal/settings"
	"tubewatch/internal/storage"
	"tubewatch/internal/subsync"
	"tubewatch/internal/tracker"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
	maxBodyBytes         = 1 << 20
)

// Service is the set of tracker operations served over HTTP.
type Service interface {
	AddPlaylist(ctx context.Context, id string, intervalMinutes int, titleFilter string) (*model.Playlist, error)
	UpdatePlaylist(ctx context.Context, id string, intervalMinutes *int, titleFilter *string) (*model.Playlist, error)
	RemovePlaylist(ctx context.Context, id string) error
	CheckNow(ctx context.Context, id string) error
	ListPlaylists(ctx context.Context) ([]model.Playlist, error)
	Playlist(ctx context.Context, id string) (*model.Playlist, error)
	Videos(ctx context.Context, id string) ([]model.Video, error)
	SetVideoState(ctx context.Context, videoID string, state model.VideoState) error
	Activity(ctx context.Context, limit int) ([]model.Activity, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	CreateRule(ctx context.Context, r model.Rule) (*model.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	TestDraftRule(ctx context.Context, r model.Rule) (string, error)
	RefreshSubscriptions(ctx context.Context) (subsync.Result, error)
	Settings(ctx context.Context) (settings.Settings, error)
	SetSetting(ctx context.Context, key, value string) error
}

// NewServer returns an HTTP server for svc listening on addr.
func NewServer(addr string, svc Service, log *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Router(svc, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router builds the route table.
func Router(svc Service, log *slog.Logger) http.Handler {
	ctrl := &controller{log: log, svc: svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", ctrl.listPlaylists)
			r.Post("/", ctrl.addPlaylist)
			r.Get("/{id}", ctrl.getPlaylist)
			r.Patch("/{id}", ctrl.updatePlaylist)
			r.Delete("/{id}", ctrl.removePlaylist)
			r.Post("/{id}/check", ctrl.checkPlaylist)
			r.Get("/{id}/videos", ctrl.listVideos)
		})
		r.Put("/videos/{video_id}/state", ctrl.setVideoState)
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", ctrl.listRules)
			r.Post("/", ctrl.createRule)
			r.Post("/test", ctrl.testRule)
			r.Delete("/{id}", ctrl.deleteRule)
		})
		r.Post("/subscriptions/refresh", ctrl.refreshSubscriptions)
		r.Get("/activity", ctrl.listActivity)
		r.Get("/settings", ctrl.getSettings)
		r.Put("/settings/{key}", ctrl.setSetting)
	})

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type controller struct {
	log *slog.Logger
	svc Service
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, feed.ErrInvalidID),
		errors.Is(err, tracker.ErrInvalidInput),
		errors.Is(err, dispatch.ErrInvalidRule),
		errors.Is(err, dispatch.ErrUnknownRuleType),
		errors.Is(err, subsync.ErrChannelRequired),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, feed.ErrPlaylistNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrAlreadyAdded):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrSyncDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func (ctrl *controller) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		ctrl.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	ctrl.resolve(w, status, errorView{Error: err.Error()})
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		ctrl.log.Error("encode response", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func (ctrl *controller) listPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := ctrl.svc.ListPlaylists(r.Context())
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, fromMany(playlists, playlistFrom))
}

func (ctrl *controller) addPlaylist(w http.ResponseWriter, r *http.Request) {
	var req addPlaylistRequest
	if err := decode(w, r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	p, err := ctrl.svc.AddPlaylist(r.Context(), req.ID, req.IntervalMinutes, req.TitleFilter)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, playlistFrom(*p))
}

func (ctrl *controller) getPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := ctrl.svc.Playlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, playlistFrom(*p))
}

func (ctrl *controller) updatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req updatePlaylistRequest
	if err := decode(w, r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	p, err := ctrl.svc.UpdatePlaylist(r.Context(), chi.URLParam(r, "id"), req.IntervalMinutes, req.TitleFilter)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, playlistFrom(*p))
}

func (ctrl *controller) removePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.RemovePlaylist(r.Context(), chi.URLParam(r, "id")); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) checkPlaylist(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.CheckNow(r.Context(), chi.URLParam(r, "id")); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) listVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := ctrl.svc.Videos(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, fromMany(videos, videoFrom))
}

func (ctrl *controller) setVideoState(w http.ResponseWriter, r *http.Request) {
	var req videoStateRequest
	if err := decode(w, r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	if err := ctrl.svc.SetVideoState(r.Context(), chi.URLParam(r, "video_id"), model.VideoState(req.State)); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := ctrl.svc.ListRules(r.Context())
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, fromMany(rules, ruleFrom))
}

func (ctrl *controller) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(w, r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	rule, err := ctrl.svc.CreateRule(r.Context(), req.rule())
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, ruleFrom(*rule))
}

func (ctrl *controller) testRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(w, r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	out, err := ctrl.svc.TestDraftRule(r.Context(), req.rule())
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, testResultView{Output: out})
}

func (ctrl *controller) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) refreshSubscriptions(w http.ResponseWriter, r *http.Request) {
	res, err := ctrl.svc.RefreshSubscriptions(r.Context())
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, syncResultView{Fetched: res.Fetched, Added: res.Added, Removed: res.Removed})
}

func (ctrl *controller) listActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			ctrl.reject(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxActivityLimit)
	}
	entries, err := ctrl.svc.Activity(r.Context(), limit)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, fromMany(entries, activityFrom))
}

func (ctrl *controller) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := ctrl.svc.Settings(r.Context())
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, settingsFrom(s))
}

func (ctrl *controller) setSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decode(w, r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	if err := ctrl.svc.SetSetting(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
