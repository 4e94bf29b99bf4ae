package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/types"
)

// calibrateResult is the API response for a calibration run.
type calibrateResult struct {
	Status string                   `json:"status"`
	Result *types.CalibrationResult `json:"result,omitempty"`
	Points int                      `json:"points"`
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.runCalibration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "calibration failed", slog.Any("error", err))
		writeJSONError(w, "calibration failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// runCalibration recomputes the Carnot efficiency from the accumulated
// calibration points. A skipped calibration (too few points, no survivors
// of the outlier filter) is not an error.
func (s *Server) runCalibration(ctx context.Context) (*calibrateResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	res, err := s.predictor.Calibrate(ctx)
	if err != nil {
		return nil, err
	}

	out := &calibrateResult{
		Status: "success",
		Result: res,
		Points: s.predictor.PointCount(),
	}
	if res == nil {
		out.Status = "skipped"
		log.Ctx(ctx).InfoContext(ctx, "calibration skipped", slog.Int("points", out.Points))
	} else {
		log.Ctx(ctx).InfoContext(ctx, "calibration complete",
			slog.Float64("carnotEfficiency", res.CarnotEfficiency),
			slog.Int("samples", res.SampleCount),
			slog.Float64("confidence", res.Confidence),
		)
	}
	return out, nil
}
