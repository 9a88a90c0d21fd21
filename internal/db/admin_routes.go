package db

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/klauspost/compress/gzip"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/racelogger/internal/httputil"
	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/units"
)

// AttachAdminRoutes mounts tailsql, a database backup download, the session
// list and a per-session speed chart under /debug/. displayUnits selects the
// chart's speed unit.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, displayUnits string) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "RaceLogger DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
	debug.Handle("sessions", "Recorded sessions (JSON)", http.HandlerFunc(db.handleSessions))
	debug.Handle("session-chart", "Speed trace of the latest session (?id= for another)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		db.handleSessionChart(w, r, displayUnits)
	}))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("racelogger-backup-%d.db", db.clock.Now().Unix()))
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	n, err := io.Copy(gzipWriter, backupFile)
	if err != nil {
		monitoring.Logf("Failed to write backup: %v", err)
		return
	}
	monitoring.Logf("Database backup sent (%s uncompressed)", humanize.Bytes(uint64(n)))
}

func (db *DB) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := db.Sessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (db *DB) handleSessionChart(w http.ResponseWriter, r *http.Request, displayUnits string) {
	id := r.URL.Query().Get("id")
	if id == "" {
		latest, err := db.Sessions(r.Context(), 1)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if len(latest) == 0 {
			httputil.NotFound(w, "no sessions recorded")
			return
		}
		id = latest[0].ID
	}
	session, err := db.Session(r.Context(), id)
	if errors.Is(err, ErrSessionNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	gps, err := db.SessionGPS(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	points := make([]opts.LineData, 0, len(gps))
	for _, s := range gps {
		elapsed := s.Time - gps[0].Time
		points = append(points, opts.LineData{Value: []interface{}{elapsed, units.ConvertSpeed(s.Speed, displayUnits)}})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session " + session.ID, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Session speed", Subtitle: fmt.Sprintf("session=%s samples=%d", session.ID, len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Elapsed (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Speed (" + displayUnits + ")", NameLocation: "middle", NameGap: 35}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.AddSeries("speed", points, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
