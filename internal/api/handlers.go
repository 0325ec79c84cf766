package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/rd03d/internal/db"
	"github.com/banshee-data/rd03d/internal/httputil"
	"github.com/banshee-data/rd03d/internal/rd03d"
	"github.com/banshee-data/rd03d/internal/units"
	"github.com/banshee-data/rd03d/internal/version"
)

// TargetResponse is a target with its speed converted to display units.
type TargetResponse struct {
	Slot          int     `json:"slot"`
	X             int     `json:"x_mm"`
	Y             int     `json:"y_mm"`
	Speed         float64 `json:"speed"`
	Units         string  `json:"units"`
	PixelDistance uint16  `json:"pixel_distance_mm"`
	Distance      float64 `json:"distance_mm"`
	Angle         float64 `json:"angle_deg"`
}

// TargetsResponse is the body of GET /api/targets.
type TargetsResponse struct {
	Mode    string           `json:"mode"`
	Targets []TargetResponse `json:"targets"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version string      `json:"version"`
	Mode    string      `json:"mode"`
	Units   string      `json:"units"`
	Stats   rd03d.Stats `json:"stats"`
	Latest  *db.Reading `json:"latest"`
}

type modeRequest struct {
	Multi *bool `json:"multi"`
}

func newTargetResponse(slot int, t rd03d.Target, unit string) TargetResponse {
	return TargetResponse{
		Slot:          slot,
		X:             t.X,
		Y:             t.Y,
		Speed:         units.ConvertSpeedCMPS(t.Speed, unit),
		Units:         unit,
		PixelDistance: t.PixelDistance,
		Distance:      t.Distance,
		Angle:         t.Angle,
	}
}

// requestUnits returns the units query parameter, falling back to the
// server default.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter. Must be one of: %s", units.GetValidUnitsString())
	}
	return u, nil
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	targets := s.radar.Targets()
	resp := TargetsResponse{
		Mode:    s.radar.Mode().String(),
		Targets: make([]TargetResponse, 0, len(targets)),
	}
	for i, t := range targets {
		resp.Targets = append(resp.Targets, newTargetResponse(i+1, t, unit))
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		httputil.BadRequest(w, "target index must be an integer")
		return
	}
	unit, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	t, ok := s.radar.Target(n)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no target %d", n))
		return
	}
	httputil.WriteJSONOK(w, newTargetResponse(n, t, unit))
}

func (s *Server) mode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]string{"mode": s.radar.Mode().String()})
	case http.MethodPost:
		var req modeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Multi == nil {
			httputil.BadRequest(w, "missing 'multi' field")
			return
		}
		if err := s.radar.SetMode(*req.Multi); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to set mode: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"mode": s.radar.Mode().String()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatusResponse{
		Version: version.Version,
		Mode:    s.radar.Mode().String(),
		Units:   s.units,
		Stats:   s.radar.Stats(),
	}
	if s.store != nil {
		latest, err := s.store.Latest()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to load latest reading: %v", err))
			return
		}
		resp.Latest = latest
	}
	httputil.WriteJSONOK(w, resp)
}
