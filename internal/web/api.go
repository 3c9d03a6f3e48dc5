package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/speedwagon-io/hevt/internal/channel"
	"github.com/speedwagon-io/hevt/internal/collector"
	"github.com/speedwagon-io/hevt/internal/command"
	"github.com/speedwagon-io/hevt/internal/config"
	"github.com/speedwagon-io/hevt/internal/display"
	"github.com/speedwagon-io/hevt/internal/history"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/notifier"
	"github.com/speedwagon-io/hevt/internal/settings"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxBodyBytes        = 64 << 10
)

type Network interface {
	Status() collector.NetworkStatus
	Network() config.NetworkConfig
	ApplyNetwork(ctx context.Context, nc config.NetworkConfig) error
}

type Commands interface {
	SetThresh(t command.Thresholds) error
	RequestImage() error
	Enable(name string, on bool) error
}

type Alarms interface {
	SendTest(ctx context.Context) ([]model.PushResult, error)
	Session() notifier.Session
}

type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Deps struct {
	Network  Network
	Commands Commands
	Settings settings.Store
	Alarms   Alarms
	History  History
	State    *display.State
	Stream   http.Handler
	Range    display.Range
}

// API is the control surface of the service.
type API struct {
	log *slog.Logger
	Deps
}

func NewAPI(log *slog.Logger, deps Deps) *API {
	return &API{log: log.With(slog.String("component", "api")), Deps: deps}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/network", a.getNetwork)
	r.Put("/network", a.putNetwork)

	r.Post("/commands/thresholds", a.postThresholds)
	r.Post("/commands/image", a.postImage)
	r.Post("/commands/enable", a.postEnable)

	r.Get("/settings", a.getSettings)
	r.Put("/settings", a.putSettings)

	r.Post("/notify/test", a.postTestPush)
	r.Get("/alarm", a.getAlarm)
	r.Get("/notifications", a.getNotifications)

	r.Get("/report/latest", a.getReport)
	r.Get("/frame/latest", a.getFrame)
	if a.Stream != nil {
		r.Get("/stream", a.Stream.ServeHTTP)
	}

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (a *API) getNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Network.Status())
}

type networkRequest struct {
	BindIP     *string `json:"bind_ip"`
	DeviceIP   *string `json:"device_ip"`
	ReportPort *int    `json:"report_port"`
	ImagePort  *int    `json:"image_port"`
}

// putNetwork applies a new address set; omitted fields keep their value.
func (a *API) putNetwork(w http.ResponseWriter, r *http.Request) {
	var req networkRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	nc := a.Network.Network()
	if req.BindIP != nil {
		nc.BindIP = *req.BindIP
	}
	if req.DeviceIP != nil {
		nc.DeviceIP = *req.DeviceIP
	}
	if req.ReportPort != nil {
		nc.ReportPort = *req.ReportPort
	}
	if req.ImagePort != nil {
		nc.ImagePort = *req.ImagePort
	}

	if err := nc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.Network.ApplyNetwork(r.Context(), nc); err != nil {
		a.log.Error("failed to apply network", sl.Err(err))
		writeError(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusOK, a.Network.Status())
}

func (a *API) commandError(w http.ResponseWriter, err error) {
	var netErr *channel.NetworkError
	switch {
	case errors.Is(err, channel.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, command.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type commandResponse struct {
	Sent string `json:"sent"`
}

func (a *API) postThresholds(w http.ResponseWriter, r *http.Request) {
	t := command.DefaultThresholds()
	if err := decode(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.Commands.SetThresh(t); err != nil {
		a.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Sent: command.SetThresh(t)})
}

func (a *API) postImage(w http.ResponseWriter, r *http.Request) {
	if err := a.Commands.RequestImage(); err != nil {
		a.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Sent: command.GetImage})
}

type enableRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (a *API) postEnable(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cmd, err := command.Enable(req.Name, req.Enabled)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.Commands.Enable(req.Name, req.Enabled); err != nil {
		a.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Sent: cmd})
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Settings.Snapshot().Redacted())
}

// putSettings replaces the notification settings. Sending back the redacted
// token keeps the stored one.
func (a *API) putSettings(w http.ResponseWriter, r *http.Request) {
	current := a.Settings.Snapshot()

	next := current
	next.ChannelSecret = ""
	if err := decode(w, r, &next); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if next.AccessToken == settings.RedactedToken {
		next.AccessToken = current.AccessToken
	}

	if err := a.Settings.Update(next); err != nil {
		a.log.Error("failed to save settings", sl.Err(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.log.Info("settings saved",
		slog.Bool("enabled", next.Enabled),
		slog.Int("targets", len(next.Targets())),
	)
	writeJSON(w, http.StatusOK, a.Settings.Snapshot().Redacted())
}

type testPushResponse struct {
	OK      bool               `json:"ok"`
	Results []model.PushResult `json:"results"`
}

func (a *API) postTestPush(w http.ResponseWriter, r *http.Request) {
	results, err := a.Alarms.SendTest(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	resp := testPushResponse{Results: results}
	for _, res := range results {
		resp.OK = resp.OK || res.OK
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (a *API) getAlarm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Alarms.Session())
}

func (a *API) getNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	if a.History == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}

	entries, err := a.History.Recent(r.Context(), limit)
	if err != nil {
		a.log.Error("failed to read push history", sl.Err(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

var errNoData = errors.New("nothing received yet")

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	v, ok := a.State.LatestReport()
	if !ok {
		writeError(w, http.StatusNotFound, errNoData)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) getFrame(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.State.LatestFrame()
	if !ok {
		writeError(w, http.StatusNotFound, errNoData)
		return
	}
	writeJSON(w, http.StatusOK, display.NewFrameView(snap, a.Range))
}
